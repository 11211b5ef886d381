// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides a fake gfx.Device that tracks every object it
// hands out and records every command, for use in renderer tests.
package gfxtest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/cubes/gfx"
	"github.com/pkg/errors"
)

// Kind names a category of tracked object.
type Kind string

// Tracked kinds.
const (
	KindBuffer        Kind = "buffer"
	KindCommandPool   Kind = "commandPool"
	KindCommandBuffer Kind = "commandBuffer"
	KindDescriptorSet Kind = "descriptorSet"
	KindSemaphore     Kind = "semaphore"
	KindFence         Kind = "fence"
)

type pipeline struct{}

type texture struct{}

// Device is a gfx.Device that never touches a GPU.
type Device struct {
	seq int64

	mu         sync.Mutex
	caps       gfx.Capabilities
	allocated  map[Kind]int
	released   map[Kind]int
	live       map[interface{}]Kind
	violations []string

	nextImage   uint32
	acquireErr  error
	hangFences  bool
	delays      map[int]time.Duration
	endErrs     map[int]error
	secondaries []*CommandBuffer
	submitted   []*CommandBuffer
	presented   []uint32
	fenceWaits  int

	pipeline  *pipeline
	texture   *texture
	destroyed bool
}

// NewDevice creates a fake device with the given amount of swapchain images.
func NewDevice(images int) *Device {
	if images < 1 {
		images = 1
	}
	return &Device{
		caps: gfx.Capabilities{
			DeviceName: "gfxtest",
			MemoryTypes: []gfx.MemoryType{
				{Properties: gfx.MemoryDeviceLocal},
				{Properties: gfx.MemoryHostVisible | gfx.MemoryHostCoherent},
			},
			SwapchainSize: images,
			Extent:        gfx.Extent2D{Width: 1280, Height: 720},
		},
		allocated: make(map[Kind]int),
		released:  make(map[Kind]int),
		live:      make(map[interface{}]Kind),
		delays:    make(map[int]time.Duration),
		endErrs:   make(map[int]error),
		pipeline:  &pipeline{},
		texture:   &texture{},
	}
}

// stamp returns the next value of the global sequence counter.
func (d *Device) stamp() int64 {
	return atomic.AddInt64(&d.seq, 1)
}

// Stamp takes a sequence number, so a test can order its own events
// against the recorded commands.
func (d *Device) Stamp() int64 {
	return d.stamp()
}

func (d *Device) violate(format string, args ...interface{}) {
	d.mu.Lock()
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *Device) track(obj interface{}, kind Kind) {
	d.mu.Lock()
	d.allocated[kind]++
	d.live[obj] = kind
	d.mu.Unlock()
}

func (d *Device) untrack(obj interface{}, kind Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[obj]; !ok {
		d.violations = append(d.violations, fmt.Sprintf("release of unknown or already released %s", kind))
		return
	}
	delete(d.live, obj)
	d.released[kind]++
}

func (d *Device) isLive(obj interface{}) bool {
	d.mu.Lock()
	_, ok := d.live[obj]
	d.mu.Unlock()
	return ok
}

// SetRecordDelay makes the End call of the secondary command buffer
// with the given allocation index sleep for delay.
func (d *Device) SetRecordDelay(index int, delay time.Duration) {
	d.mu.Lock()
	d.delays[index] = delay
	d.mu.Unlock()
}

func (d *Device) recordDelay(index int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delays[index]
}

// SetEndError makes End of the secondary command buffer with the given
// allocation index fail with err. The buffer still leaves the recording state.
func (d *Device) SetEndError(index int, err error) {
	d.mu.Lock()
	d.endErrs[index] = err
	d.mu.Unlock()
}

func (d *Device) endError(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endErrs[index]
}

// SetHangFences makes submitted work never complete.
func (d *Device) SetHangFences(hang bool) {
	d.mu.Lock()
	d.hangFences = hang
	d.mu.Unlock()
}

// SetAcquireError makes AcquireNextImage fail with err.
func (d *Device) SetAcquireError(err error) {
	d.mu.Lock()
	d.acquireErr = err
	d.mu.Unlock()
}

// Allocated returns how many objects of the kind were created.
// With no kind given all kinds are summed.
func (d *Device) Allocated(kinds ...Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sum(d.allocated, kinds)
}

// Released returns how many objects of the kind were released.
// With no kind given all kinds are summed.
func (d *Device) Released(kinds ...Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sum(d.released, kinds)
}

func sum(m map[Kind]int, kinds []Kind) int {
	var n int
	if len(kinds) == 0 {
		for _, c := range m {
			n += c
		}
		return n
	}
	for _, k := range kinds {
		n += m[k]
	}
	return n
}

// Live returns the count of objects not yet released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Violations returns every misuse of the device seen so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Secondaries returns secondary command buffers in allocation order.
func (d *Device) Secondaries() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.secondaries...)
}

// Submitted returns every primary buffer submitted, in order.
func (d *Device) Submitted() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.submitted...)
}

// Presented returns the image indices presented, in order.
func (d *Device) Presented() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.presented...)
}

// FenceWaits returns how many times WaitForFence was called.
func (d *Device) FenceWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fenceWaits
}

// Capabilities implements gfx.Device.
func (d *Device) Capabilities() gfx.Capabilities {
	return d.caps
}

// Extent implements gfx.Device.
func (d *Device) Extent() gfx.Extent2D {
	return d.caps.Extent
}

// Pipeline implements gfx.Device.
func (d *Device) Pipeline() gfx.Pipeline {
	return d.pipeline
}

// Texture implements gfx.Device.
func (d *Device) Texture() gfx.Texture {
	return d.texture
}

// NewBuffer implements gfx.Device.
func (d *Device) NewBuffer(size int, usage gfx.BufferUsage) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("gfxtest: invalid buffer size %d", size)
	}
	b := &Buffer{dev: d, data: make([]byte, size), usage: usage}
	d.track(b, KindBuffer)
	return b, nil
}

// NewCommandPool implements gfx.Device.
func (d *Device) NewCommandPool() (gfx.CommandPool, error) {
	p := &CommandPool{dev: d}
	d.track(p, KindCommandPool)
	return p, nil
}

// NewDescriptorSet implements gfx.Device.
func (d *Device) NewDescriptorSet() (gfx.DescriptorSet, error) {
	s := &DescriptorSet{dev: d}
	d.track(s, KindDescriptorSet)
	return s, nil
}

// NewSemaphore implements gfx.Device.
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	s := &Semaphore{dev: d}
	d.track(s, KindSemaphore)
	return s, nil
}

// NewFence implements gfx.Device.
func (d *Device) NewFence() (gfx.Fence, error) {
	f := &Fence{dev: d}
	d.track(f, KindFence)
	return f, nil
}

// AcquireNextImage implements gfx.Device.
func (d *Device) AcquireNextImage(signal gfx.Semaphore) (uint32, error) {
	if !d.isLive(signal) {
		d.violate("acquire with a dead semaphore")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquireErr != nil {
		return 0, d.acquireErr
	}
	img := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(d.caps.SwapchainSize)
	return img, nil
}

// Submit implements gfx.Device.
func (d *Device) Submit(primary gfx.CommandBuffer, wait, signal gfx.Semaphore, fence gfx.Fence) error {
	cb, ok := primary.(*CommandBuffer)
	if !ok || cb.level != gfx.Primary {
		d.violate("submit of a non primary command buffer")
		return errors.New("gfxtest: can only submit primary command buffers")
	}
	if cb.Recording() {
		d.violate("submit of a command buffer still recording")
	}
	for _, s := range []interface{}{wait, signal, fence} {
		if !d.isLive(s) {
			d.violate("submit with a dead synchronization object")
		}
	}

	d.mu.Lock()
	d.submitted = append(d.submitted, cb)
	hang := d.hangFences
	d.mu.Unlock()

	if f, ok := fence.(*Fence); ok && !hang {
		f.signal()
	}
	return nil
}

// WaitForFence implements gfx.Device.
func (d *Device) WaitForFence(fence gfx.Fence, timeout time.Duration) error {
	d.mu.Lock()
	d.fenceWaits++
	d.mu.Unlock()

	f, ok := fence.(*Fence)
	if !ok || !d.isLive(fence) {
		d.violate("wait on a dead fence")
		return errors.New("gfxtest: unknown fence")
	}
	select {
	case <-f.done():
		return nil
	case <-time.After(timeout):
		return gfx.ErrTimeout
	}
}

// Present implements gfx.Device.
func (d *Device) Present(image uint32, wait gfx.Semaphore) error {
	if !d.isLive(wait) {
		d.violate("present with a dead semaphore")
	}
	d.mu.Lock()
	d.presented = append(d.presented, image)
	d.mu.Unlock()
	return nil
}

// WaitIdle implements gfx.Device.
func (d *Device) WaitIdle() error {
	return nil
}

// Release implements gfx.Device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		d.violations = append(d.violations, "device released twice")
	}
	d.destroyed = true
}
