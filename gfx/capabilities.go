// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// MemoryProperty is a bit set of memory type properties.
type MemoryProperty uint32

// Memory properties, values match the Vulkan bits.
const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
	MemoryHostCached   MemoryProperty = 0x8
)

// MemoryType describes one memory type of a physical device.
type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

// Capabilities is what a device reports about itself once created.
// It is handed to whichever component needs it, never kept globally.
type Capabilities struct {
	DeviceName    string
	MemoryTypes   []MemoryType
	SwapchainSize int
	Extent        Extent2D
}

// FindMemoryType returns the index of the first memory type allowed by
// filter that has all of the requested properties.
func (c Capabilities) FindMemoryType(filter uint32, props MemoryProperty) (uint32, error) {
	for idx, mt := range c.MemoryTypes {
		if idx >= 32 {
			break
		}
		if filter&(1<<uint(idx)) != 0 && mt.Properties&props == props {
			return uint32(idx), nil
		}
	}
	return 0, ErrNoMemoryType
}
