// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/devblok/cubes/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// Memory defines a usable memory region.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Map maps the whole region and returns it as a byte slice.
func (m *Memory) Map() ([]byte, error) {
	var ptr unsafe.Pointer
	if err := check("MapMemory", vk.MapMemory(m.device, m.memory, 0, m.size, 0, &ptr)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), int(m.size)), nil
}

// Unmap removes the mapping.
func (m *Memory) Unmap() {
	vk.UnmapMemory(m.device, m.memory)
}

// Release frees memory.
func (m *Memory) Release() {
	if m.memory == nil {
		return
	}
	vk.FreeMemory(m.device, m.memory, nil)
	m.memory = nil
}

// NewMemoryAllocator creates a memory allocator for the logical device.
// Memory types are looked up in the capabilities the device reported.
func NewMemoryAllocator(device vk.Device, caps gfx.Capabilities) *MemoryAllocator {
	return &MemoryAllocator{
		device: device,
		caps:   caps,
	}
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device vk.Device
	caps   gfx.Capabilities
}

// Malloc returns a usable memory chunk ready for use.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, props gfx.MemoryProperty) (Memory, error) {
	memTypeIdx, err := ma.caps.FindMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return Memory{}, errors.Wrapf(err, "properties %#x", uint32(props))
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := check("AllocateMemory", vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, err
	}
	return Memory{
		device: ma.device,
		memory: memory,
		size:   req.Size,
	}, nil
}

func capabilitiesOf(physical vk.PhysicalDevice) gfx.Capabilities {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()

	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProperties)
	memProperties.Deref()

	caps := gfx.Capabilities{
		DeviceName: vk.ToString(properties.DeviceName[:]),
	}
	for idx := uint32(0); idx < memProperties.MemoryTypeCount; idx++ {
		memProperties.MemoryTypes[idx].Deref()
		caps.MemoryTypes = append(caps.MemoryTypes, gfx.MemoryType{
			Properties: gfx.MemoryProperty(memProperties.MemoryTypes[idx].PropertyFlags),
			HeapIndex:  memProperties.MemoryTypes[idx].HeapIndex,
		})
	}
	return caps
}
