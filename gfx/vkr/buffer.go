// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/cubes/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// NewBuffer creates, configures, allocates and binds a new host visible buffer.
func NewBuffer(dev vk.Device, size int, usage vk.BufferUsageFlagBits, ma *MemoryAllocator) (*Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("CreateBuffer", vk.CreateBuffer(dev, &createInfo, nil, &buffer)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &req)
	req.Deref()

	memory, err := ma.Malloc(req, gfx.MemoryHostVisible|gfx.MemoryHostCoherent)
	if err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		return nil, err
	}

	if err := check("BindBufferMemory", vk.BindBufferMemory(dev, buffer, memory.Get(), 0)); err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		memory.Release()
		return nil, err
	}

	return &Buffer{
		device: dev,
		buffer: buffer,
		memory: memory,
		size:   size,
	}, nil
}

// Buffer implements a generic vulkan buffer.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory Memory
	size   int
	mapped []byte
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Size implements gfx.Buffer
func (b *Buffer) Size() int {
	return b.size
}

// Map implements gfx.Buffer
func (b *Buffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return nil, errors.New("vkr: buffer already mapped")
	}
	data, err := b.memory.Map()
	if err != nil {
		return nil, err
	}
	b.mapped = data[:b.size]
	return b.mapped, nil
}

// Unmap implements gfx.Buffer
func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.memory.Unmap()
	b.mapped = nil
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	if b.buffer == nil {
		return
	}
	b.Unmap()
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
	b.buffer = nil
}

func bufferUsage(usage gfx.BufferUsage) (vk.BufferUsageFlagBits, error) {
	switch usage {
	case gfx.UniformBuffer:
		return vk.BufferUsageUniformBufferBit, nil
	case gfx.VertexBuffer:
		return vk.BufferUsageVertexBufferBit, nil
	default:
		return 0, errors.Errorf("vkr: unknown buffer usage %d", usage)
	}
}
