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

// DescriptorSet is a set of the device layout: a uniform buffer
// at binding 0 and a combined image sampler at binding 1.
type DescriptorSet struct {
	dev *Device
	set vk.DescriptorSet
}

// NewDescriptorSet implements gfx.Device
func (d *Device) NewDescriptorSet() (gfx.DescriptorSet, error) {
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayout},
	}
	var set vk.DescriptorSet
	if err := check("AllocateDescriptorSets", vk.AllocateDescriptorSets(d.logical, &dsai, &set)); err != nil {
		return nil, err
	}
	return &DescriptorSet{dev: d, set: set}, nil
}

// Update implements gfx.DescriptorSet
func (s *DescriptorSet) Update(uniform gfx.Buffer, texture gfx.Texture) error {
	buf, ok := uniform.(*Buffer)
	if !ok {
		return errors.Errorf("vkr: foreign buffer %T", uniform)
	}
	tex, ok := texture.(*Texture)
	if !ok {
		return errors.Errorf("vkr: foreign texture %T", texture)
	}

	dbi := vk.DescriptorBufferInfo{
		Buffer: buf.buffer,
		Offset: 0,
		Range:  vk.DeviceSize(buf.size),
	}
	dii := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   tex.view,
		Sampler:     tex.sampler,
	}
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.set,
		DstBinding:      0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo:     []vk.DescriptorBufferInfo{dbi},
	}, {
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.set,
		DstBinding:      1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo:      []vk.DescriptorImageInfo{dii},
	}}
	vk.UpdateDescriptorSets(s.dev.logical, uint32(len(wds)), wds, 0, nil)
	return nil
}

// Release implements gfx.Releasable
func (s *DescriptorSet) Release() {
	if s.set == nil {
		return
	}
	vk.FreeDescriptorSets(s.dev.logical, s.dev.descriptorPool, 1, &s.set)
	s.set = nil
}
