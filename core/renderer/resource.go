// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/cubes/gfx"
	"github.com/devblok/cubes/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Resource is everything one worker needs to record its cube.
// It is only ever touched by the worker of the same index while a frame
// is being recorded, which is what keeps recording free of locks.
type Resource struct {
	index int

	uniform    gfx.Buffer
	vertices   gfx.Buffer
	descriptor gfx.DescriptorSet

	// only allocated when recording on workers
	pool     gfx.CommandPool
	commands gfx.CommandBuffer

	rotation  glm.Mat4
	transform glm.Mat4
}

func newResource(dev gfx.Device, index int, secondary bool) (res *Resource, err error) {
	res = &Resource{
		index:     index,
		rotation:  glm.Ident4(),
		transform: glm.Ident4(),
	}
	defer func() {
		if err != nil {
			res.Release()
			res = nil
		}
	}()

	if res.uniform, err = dev.NewBuffer(model.UniformSize, gfx.UniformBuffer); err != nil {
		return res, errors.Wrap(err, "uniform buffer")
	}

	vertices := model.VertexBytes(model.Cube())
	if res.vertices, err = dev.NewBuffer(len(vertices), gfx.VertexBuffer); err != nil {
		return res, errors.Wrap(err, "vertex buffer")
	}
	if err = upload(res.vertices, vertices); err != nil {
		return res, errors.Wrap(err, "vertex upload")
	}

	if res.descriptor, err = dev.NewDescriptorSet(); err != nil {
		return res, errors.Wrap(err, "descriptor set")
	}

	if !secondary {
		return res, nil
	}

	if res.pool, err = dev.NewCommandPool(); err != nil {
		return res, errors.Wrap(err, "command pool")
	}
	if res.commands, err = res.pool.Allocate(gfx.Secondary); err != nil {
		return res, errors.Wrap(err, "secondary command buffer")
	}
	return res, nil
}

func upload(buf gfx.Buffer, data []byte) error {
	mem, err := buf.Map()
	if err != nil {
		return err
	}
	defer buf.Unmap()
	if len(mem) < len(data) {
		return errors.Errorf("buffer of %d bytes cannot hold %d", len(mem), len(data))
	}
	copy(mem, data)
	return nil
}

// Index returns the worker index owning the resource.
func (r *Resource) Index() int {
	return r.index
}

// Transform returns the model matrix written in the last frame.
func (r *Resource) Transform() glm.Mat4 {
	return r.transform
}

// Rotation returns the accumulated rotation.
func (r *Resource) Rotation() glm.Mat4 {
	return r.rotation
}

// UniformBuffer returns the buffer the uniform is written to.
func (r *Resource) UniformBuffer() gfx.Buffer {
	return r.uniform
}

// VertexBuffer returns the cube vertex buffer.
func (r *Resource) VertexBuffer() gfx.Buffer {
	return r.vertices
}

// DescriptorSet returns the descriptor set pointing at the uniform buffer.
func (r *Resource) DescriptorSet() gfx.DescriptorSet {
	return r.descriptor
}

// Commands returns the secondary command buffer, nil
// when draws are recorded inline.
func (r *Resource) Commands() gfx.CommandBuffer {
	return r.commands
}

// Uniform reads back the uniform buffer contents.
// Must not be called while a frame is being recorded.
func (r *Resource) Uniform() (model.Uniform, error) {
	mem, err := r.uniform.Map()
	if err != nil {
		return model.Uniform{}, err
	}
	defer r.uniform.Unmap()
	return model.UniformFromBytes(mem)
}

// Release frees everything the resource holds, in reverse order of
// allocation. Calling it again does nothing.
func (r *Resource) Release() {
	if r.pool != nil {
		// frees the secondary buffer with it
		r.pool.Release()
		r.pool = nil
		r.commands = nil
	}
	if r.descriptor != nil {
		r.descriptor.Release()
		r.descriptor = nil
	}
	if r.vertices != nil {
		r.vertices.Release()
		r.vertices = nil
	}
	if r.uniform != nil {
		r.uniform.Release()
		r.uniform = nil
	}
}
