// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"
	"time"

	"github.com/devblok/cubes/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// Semaphore wraps vk.Semaphore
type Semaphore struct {
	device    vk.Device
	semaphore vk.Semaphore
}

// Release implements gfx.Releasable
func (s *Semaphore) Release() {
	if s.semaphore == nil {
		return
	}
	vk.DestroySemaphore(s.device, s.semaphore, nil)
	s.semaphore = nil
}

// Fence wraps vk.Fence
type Fence struct {
	device vk.Device
	fence  vk.Fence
}

// Release implements gfx.Releasable
func (f *Fence) Release() {
	if f.fence == nil {
		return
	}
	vk.DestroyFence(f.device, f.fence, nil)
	f.fence = nil
}

// NewSemaphore implements gfx.Device
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("CreateSemaphore", vk.CreateSemaphore(d.logical, &sci, nil, &semaphore)); err != nil {
		return nil, err
	}
	return &Semaphore{device: d.logical, semaphore: semaphore}, nil
}

// NewFence implements gfx.Device, the fence starts unsignalled.
func (d *Device) NewFence() (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := check("CreateFence", vk.CreateFence(d.logical, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return &Fence{device: d.logical, fence: fence}, nil
}

// AcquireNextImage implements gfx.Device
func (d *Device) AcquireNextImage(signal gfx.Semaphore) (uint32, error) {
	sem, ok := signal.(*Semaphore)
	if !ok {
		return 0, errors.Errorf("vkr: foreign semaphore %T", signal)
	}
	var image uint32
	result := vk.AcquireNextImage(d.logical, d.swapchain, math.MaxUint64, sem.semaphore, vk.NullFence, &image)
	switch result {
	case vk.Success, vk.Suboptimal:
		return image, nil
	case vk.ErrorOutOfDate:
		return 0, gfx.ErrOutOfDate
	default:
		return 0, check("AcquireNextImage", result)
	}
}

// Submit implements gfx.Device
func (d *Device) Submit(primary gfx.CommandBuffer, wait, signal gfx.Semaphore, fence gfx.Fence) error {
	cb, ok := primary.(*CommandBuffer)
	if !ok || cb.level != gfx.Primary {
		return errors.New("vkr: only primary command buffers can be submitted")
	}
	waitSem, ok := wait.(*Semaphore)
	if !ok {
		return errors.Errorf("vkr: foreign semaphore %T", wait)
	}
	signalSem, ok := signal.(*Semaphore)
	if !ok {
		return errors.Errorf("vkr: foreign semaphore %T", signal)
	}
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Errorf("vkr: foreign fence %T", fence)
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{waitSem.semaphore},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signalSem.semaphore},
	}}
	return check("QueueSubmit", vk.QueueSubmit(d.queue, 1, submit, f.fence))
}

// WaitForFence implements gfx.Device. The fence is waited on once,
// a vk.Timeout result is reported as gfx.ErrTimeout.
func (d *Device) WaitForFence(fence gfx.Fence, timeout time.Duration) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Errorf("vkr: foreign fence %T", fence)
	}
	result := vk.WaitForFences(d.logical, 1, []vk.Fence{f.fence}, vk.True, uint(timeout.Nanoseconds()))
	if result == vk.Timeout {
		return gfx.ErrTimeout
	}
	return check("WaitForFences", result)
}

// Present implements gfx.Device
func (d *Device) Present(image uint32, wait gfx.Semaphore) error {
	sem, ok := wait.(*Semaphore)
	if !ok {
		return errors.Errorf("vkr: foreign semaphore %T", wait)
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem.semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain},
		PImageIndices:      []uint32{image},
	}

	switch result := vk.QueuePresent(d.queue, &presentInfo); result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return gfx.ErrOutOfDate
	default:
		return check("QueuePresent", result)
	}
}

// WaitIdle implements gfx.Device
func (d *Device) WaitIdle() error {
	return check("DeviceWaitIdle", vk.DeviceWaitIdle(d.logical))
}
