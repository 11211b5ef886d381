// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"image"

	"github.com/devblok/cubes/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// Texture is a sampled, device local RGBA image
type Texture struct {
	device  vk.Device
	image   vk.Image
	memory  Memory
	view    vk.ImageView
	sampler vk.Sampler
}

// Release implements gfx.Releasable
func (t *Texture) Release() {
	vk.DestroySampler(t.device, t.sampler, nil)
	vk.DestroyImageView(t.device, t.view, nil)
	vk.DestroyImage(t.device, t.image, nil)
	t.memory.Release()
}

// newTexture uploads img through a staging buffer into an optimally tiled image
func (d *Device) newTexture(img image.Image) (*Texture, error) {
	bounds := img.Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())
	pixels := GetPixels(img)

	staging, err := NewBuffer(d.logical, len(pixels), vk.BufferUsageTransferSrcBit, d.allocator)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	mapped, err := staging.Map()
	if err != nil {
		return nil, err
	}
	copy(mapped, pixels)
	staging.Unmap()

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.FormatR8g8b8a8Unorm,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	tex := &Texture{device: d.logical}
	if err := check("CreateImage", vk.CreateImage(d.logical, &ici, nil, &tex.image)); err != nil {
		return nil, err
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, tex.image, &memRequirements)
	memRequirements.Deref()

	if tex.memory, err = d.allocator.Malloc(memRequirements, gfx.MemoryDeviceLocal); err != nil {
		tex.Release()
		return nil, err
	}
	if err := check("BindImageMemory", vk.BindImageMemory(d.logical, tex.image, tex.memory.Get(), 0)); err != nil {
		tex.Release()
		return nil, err
	}

	if err := d.singleTimeCommands(func(cmd vk.CommandBuffer) error {
		if err := transitionLayout(cmd, tex.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		bic := vk.BufferImageCopy{
			ImageExtent: vk.Extent3D{
				Width:  width,
				Height: height,
				Depth:  1,
			},
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
		}
		vk.CmdCopyBufferToImage(cmd, staging.Get(), tex.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{bic})
		return transitionLayout(cmd, tex.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	}); err != nil {
		tex.Release()
		return nil, err
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    tex.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if err := check("CreateImageView", vk.CreateImageView(d.logical, &ivci, nil, &tex.view)); err != nil {
		tex.Release()
		return nil, err
	}

	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if err := check("CreateSampler", vk.CreateSampler(d.logical, &sci, nil, &tex.sampler)); err != nil {
		tex.Release()
		return nil, err
	}
	return tex, nil
}

// singleTimeCommands records fn into a throwaway command buffer,
// submits it and waits for the queue to go idle.
func (d *Device) singleTimeCommands(fn func(cmd vk.CommandBuffer) error) error {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.uploadPool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := check("AllocateCommandBuffers", vk.AllocateCommandBuffers(d.logical, &cbai, commandBuffers)); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(d.logical, d.uploadPool, 1, commandBuffers)
	cmd := commandBuffers[0]

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("BeginCommandBuffer", vk.BeginCommandBuffer(cmd, &cbbi)); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		return err
	}
	if err := check("EndCommandBuffer", vk.EndCommandBuffer(cmd)); err != nil {
		return err
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}
	if err := check("QueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, vk.NullFence)); err != nil {
		return err
	}
	return check("QueueWaitIdle", vk.QueueWaitIdle(d.queue))
}

func transitionLayout(cmd vk.CommandBuffer, img vk.Image, old vk.ImageLayout, new vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			LevelCount: 1,
			LayerCount: 1,
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case old == vk.ImageLayoutUndefined && new == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case old == vk.ImageLayoutTransferDstOptimal && new == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		return errors.Errorf("vkr: unsupported layout transition %d -> %d", old, new)
	}

	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}
