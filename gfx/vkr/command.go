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

// CommandPool wraps vk.CommandPool. Destroying the pool
// frees every command buffer allocated from it.
type CommandPool struct {
	dev  *Device
	pool vk.CommandPool
}

// NewCommandPool implements gfx.Device
func (d *Device) NewCommandPool() (gfx.CommandPool, error) {
	pool, err := d.createCommandPool(vk.CommandPoolCreateResetCommandBufferBit)
	if err != nil {
		return nil, err
	}
	return &CommandPool{dev: d, pool: pool}, nil
}

func (d *Device) createCommandPool(flags vk.CommandPoolCreateFlagBits) (vk.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}
	var commandPool vk.CommandPool
	if err := check("CreateCommandPool", vk.CreateCommandPool(d.logical, &cpci, nil, &commandPool)); err != nil {
		return nil, err
	}
	return commandPool, nil
}

// Allocate implements gfx.CommandPool
func (p *CommandPool) Allocate(level gfx.Level) (gfx.CommandBuffer, error) {
	vkLevel := vk.CommandBufferLevelPrimary
	if level == gfx.Secondary {
		vkLevel = vk.CommandBufferLevelSecondary
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vkLevel,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := check("AllocateCommandBuffers", vk.AllocateCommandBuffers(p.dev.logical, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	return &CommandBuffer{
		dev:   p.dev,
		cmd:   commandBuffers[0],
		level: level,
	}, nil
}

// Release implements gfx.Releasable
func (p *CommandPool) Release() {
	if p.pool == nil {
		return
	}
	vk.DestroyCommandPool(p.dev.logical, p.pool, nil)
	p.pool = nil
}

// CommandBuffer wraps vk.CommandBuffer
type CommandBuffer struct {
	dev   *Device
	cmd   vk.CommandBuffer
	level gfx.Level
}

// Begin implements gfx.CommandBuffer. Secondary buffers continue the
// render pass on the framebuffer of the inherited image.
func (c *CommandBuffer) Begin(inherit *gfx.Inheritance) error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if c.level == gfx.Secondary {
		if inherit == nil {
			return errors.New("vkr: secondary command buffer needs inheritance")
		}
		if int(inherit.Image) >= len(c.dev.framebuffers) {
			return errors.Errorf("vkr: image %d out of range", inherit.Image)
		}
		cbbi.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit |
			vk.CommandBufferUsageOneTimeSubmitBit |
			vk.CommandBufferUsageSimultaneousUseBit)
		cbbi.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  c.dev.renderPass,
			Subpass:     0,
			Framebuffer: c.dev.framebuffers[inherit.Image],
		}}
	}
	return check("BeginCommandBuffer", vk.BeginCommandBuffer(c.cmd, &cbbi))
}

// End implements gfx.CommandBuffer
func (c *CommandBuffer) End() error {
	return check("EndCommandBuffer", vk.EndCommandBuffer(c.cmd))
}

// BeginRenderPass implements gfx.CommandBuffer
func (c *CommandBuffer) BeginRenderPass(image uint32, contents gfx.SubpassContents) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[1].SetDepthStencil(1, 0)
	clearValues[0].SetColor([]float32{
		0.005, 0.005, 0.005, 0.005,
	})

	subpass := vk.SubpassContentsInline
	if contents == gfx.ContentsSecondary {
		subpass = vk.SubpassContentsSecondaryCommandBuffers
	}

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  c.dev.renderPass,
		Framebuffer: c.dev.framebuffers[image],
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  c.dev.extent.Width,
				Height: c.dev.extent.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.cmd, &rpbi, subpass)
}

// EndRenderPass implements gfx.CommandBuffer
func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.cmd)
}

// BindPipeline implements gfx.CommandBuffer
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	vk.CmdBindPipeline(c.cmd, vk.PipelineBindPointGraphics, p.(*Pipeline).pipeline)
}

// BindDescriptorSet implements gfx.CommandBuffer
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline, set gfx.DescriptorSet) {
	vk.CmdBindDescriptorSets(c.cmd, vk.PipelineBindPointGraphics, p.(*Pipeline).layout,
		0, 1, []vk.DescriptorSet{set.(*DescriptorSet).set}, 0, nil)
}

// BindVertexBuffer implements gfx.CommandBuffer
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer) {
	vk.CmdBindVertexBuffers(c.cmd, 0, 1, []vk.Buffer{b.(*Buffer).buffer}, []vk.DeviceSize{0})
}

// SetViewport implements gfx.CommandBuffer
func (c *CommandBuffer) SetViewport(v gfx.Viewport) {
	vk.CmdSetViewport(c.cmd, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

// SetScissor implements gfx.CommandBuffer
func (c *CommandBuffer) SetScissor(r gfx.Rect2D) {
	vk.CmdSetScissor(c.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}})
}

// Draw implements gfx.CommandBuffer
func (c *CommandBuffer) Draw(vertices, instances uint32) {
	vk.CmdDraw(c.cmd, vertices, instances, 0, 0)
}

// ExecuteCommands implements gfx.CommandBuffer
func (c *CommandBuffer) ExecuteCommands(secondaries ...gfx.CommandBuffer) {
	if len(secondaries) == 0 {
		return
	}
	cmds := make([]vk.CommandBuffer, len(secondaries))
	for idx, s := range secondaries {
		cmds[idx] = s.(*CommandBuffer).cmd
	}
	vk.CmdExecuteCommands(c.cmd, uint32(len(cmds)), cmds)
}

// PresentBarrier implements gfx.CommandBuffer. The render pass leaves
// the image as a color attachment, this moves it to the present layout.
func (c *CommandBuffer) PresentBarrier(image uint32) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit),
		OldLayout:           vk.ImageLayoutColorAttachmentOptimal,
		NewLayout:           vk.ImageLayoutPresentSrc,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               c.dev.images[image],
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(c.cmd,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
