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

// ComputeTransform advances rotation around Y by angle and places the
// result at the fixed offset of the given index, (spacing*i, 0, -spacing*i).
// It returns the new rotation and the model matrix.
func ComputeTransform(rotation glm.Mat4, index int, angle, spacing float32) (glm.Mat4, glm.Mat4) {
	if angle != 0 {
		rotation = rotation.Mul4(glm.HomogRotate3DY(angle))
	}
	transform := rotation
	transform[12] = spacing * float32(index)
	transform[13] = 0
	transform[14] = -spacing * float32(index)
	return rotation, transform
}

// update moves the resource forward by dt and writes its uniform.
func (r *Renderer) update(res *Resource, dt float32) error {
	res.rotation, res.transform = ComputeTransform(res.rotation, res.index, r.cfg.AngularVelocity*dt, r.cfg.Spacing)

	u := model.Uniform{
		Model:      res.transform,
		View:       r.view,
		Projection: r.projection,
	}
	if err := upload(res.uniform, u.Bytes()); err != nil {
		return errors.Wrap(err, "uniform upload")
	}
	if err := res.descriptor.Update(res.uniform, r.dev.Texture()); err != nil {
		return errors.Wrap(err, "descriptor update")
	}
	return nil
}

// draw records the draw of one resource into cb.
func (r *Renderer) draw(cb gfx.CommandBuffer, res *Resource) {
	pipeline := r.dev.Pipeline()
	extent := r.dev.Extent()

	cb.BindPipeline(pipeline)
	cb.BindDescriptorSet(pipeline, res.descriptor)
	cb.BindVertexBuffer(res.vertices)
	cb.SetViewport(gfx.FullViewport(extent))
	cb.SetScissor(gfx.FullScissor(extent))
	cb.Draw(model.CubeVertexCount, 1)
}

// BuildSecondaryBuffer updates the resource of worker owner and records
// its secondary command buffer against the given swapchain image.
// It touches nothing but that resource and the shared read-only pipeline
// and texture, so workers can run it concurrently.
func (r *Renderer) BuildSecondaryBuffer(owner int, dt float32, image uint32) error {
	if owner < 0 || owner >= len(r.resources) {
		return errors.Errorf("no resource for worker %d", owner)
	}
	res := r.resources[owner]
	if res.commands == nil {
		return errors.Errorf("resource %d has no secondary command buffer", owner)
	}

	if err := r.update(res, dt); err != nil {
		return errors.Wrapf(err, "worker %d", owner)
	}

	if err := res.commands.Begin(&gfx.Inheritance{Image: image}); err != nil {
		return errors.Wrapf(err, "worker %d: begin", owner)
	}
	r.draw(res.commands, res)
	if err := res.commands.End(); err != nil {
		return errors.Wrapf(err, "worker %d: end", owner)
	}
	return nil
}
