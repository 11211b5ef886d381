// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the rendering primitives that a GPU backend must implement.
// Renderers only ever talk to these interfaces, the concrete API lives
// in a backend package such as vkr.
package gfx

import (
	"time"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrTimeout      = errors.New("gfx: wait timed out")
	ErrOutOfDate    = errors.New("gfx: swapchain out of date")
	ErrNoMemoryType = errors.New("gfx: suitable memory type not found")
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// BufferUsage describes what a Buffer is going to be bound as.
type BufferUsage int

// Buffer usages supported by the renderer.
const (
	UniformBuffer BufferUsage = iota
	VertexBuffer
)

// Level is the level of a command buffer.
type Level int

// Command buffer levels. Secondary buffers can only be executed
// from a primary buffer, they cannot be submitted on their own.
const (
	Primary Level = iota
	Secondary
)

// SubpassContents tells how the commands of a render pass are provided.
type SubpassContents int

// A render pass begun with ContentsSecondary must receive its commands
// through ExecuteCommands only, never mix it with inline draws.
const (
	ContentsInline SubpassContents = iota
	ContentsSecondary
)

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Viewport is the area of the framebuffer rendered into.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect2D is a pixel rectangle, used for scissors.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

// FullViewport returns a viewport covering the whole extent.
func FullViewport(e Extent2D) Viewport {
	return Viewport{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MaxDepth: 1,
	}
}

// FullScissor returns a scissor covering the whole extent.
func FullScissor(e Extent2D) Rect2D {
	return Rect2D{Extent: e}
}

// Inheritance carries the render pass state a secondary
// command buffer continues from.
type Inheritance struct {
	// Image is the swapchain image whose framebuffer is targeted.
	Image uint32
}

// Pipeline is an immutable graphics pipeline together with its layout.
// Safe to share for reading between recording threads.
type Pipeline interface{}

// Texture is an immutable sampled image. Safe to share for reading.
type Texture interface{}

// Semaphore orders work between GPU queue operations.
type Semaphore interface {
	Releasable
}

// Fence signals the CPU that submitted work has finished.
type Fence interface {
	Releasable
}

// Buffer is a host visible GPU buffer.
type Buffer interface {
	Releasable

	// Size returns the size of the buffer in bytes.
	Size() int

	// Map maps the buffer memory and returns it as a byte slice,
	// the slice is only valid until Unmap.
	Map() ([]byte, error)

	// Unmap removes the mapping created by Map.
	Unmap()
}

// DescriptorSet is a bound group of resource references read by a draw.
type DescriptorSet interface {
	Releasable

	// Update points the set at the given uniform buffer and texture.
	Update(uniform Buffer, texture Texture) error
}

// CommandPool owns the memory of the command buffers allocated from it.
// A pool and its buffers must only be used from one thread at a time.
type CommandPool interface {
	Releasable

	// Allocate allocates a command buffer of the given level.
	Allocate(level Level) (CommandBuffer, error)
}

// CommandBuffer records GPU commands.
type CommandBuffer interface {

	// Begin resets and starts recording. Secondary buffers that continue
	// a render pass must be given the inheritance, primary buffers get nil.
	Begin(inherit *Inheritance) error

	// End finishes recording.
	End() error

	BeginRenderPass(image uint32, contents SubpassContents)
	EndRenderPass()
	BindPipeline(p Pipeline)
	BindDescriptorSet(p Pipeline, set DescriptorSet)
	BindVertexBuffer(b Buffer)
	SetViewport(v Viewport)
	SetScissor(r Rect2D)
	Draw(vertices, instances uint32)

	// ExecuteCommands stitches recorded secondary buffers into
	// this primary buffer, in the order given.
	ExecuteCommands(secondaries ...CommandBuffer)

	// PresentBarrier transitions the swapchain image into the presentable layout.
	PresentBarrier(image uint32)
}

// Device is the GPU collaborator the renderer drives.
type Device interface {
	Releasable

	// Capabilities returns the device capabilities value object.
	Capabilities() Capabilities

	// Extent returns the size of the presentable images.
	Extent() Extent2D

	NewBuffer(size int, usage BufferUsage) (Buffer, error)
	NewCommandPool() (CommandPool, error)
	NewDescriptorSet() (DescriptorSet, error)
	NewSemaphore() (Semaphore, error)
	NewFence() (Fence, error)

	// Pipeline returns the shared graphics pipeline.
	Pipeline() Pipeline

	// Texture returns the shared texture.
	Texture() Texture

	// AcquireNextImage blocks until a presentable image is available,
	// signal is signalled once the image can be rendered to.
	AcquireNextImage(signal Semaphore) (uint32, error)

	// Submit submits a primary command buffer to the queue. The work waits
	// on wait, signals signal when done and then signals fence.
	Submit(primary CommandBuffer, wait, signal Semaphore, fence Fence) error

	// WaitForFence waits for the fence at most timeout, returning
	// ErrTimeout when the fence did not signal in time.
	WaitForFence(fence Fence, timeout time.Duration) error

	// Present queues the image for presentation after wait is signalled.
	Present(image uint32, wait Semaphore) error

	// WaitIdle blocks until the device has no work in flight.
	WaitIdle() error
}
