// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"sync"

	"github.com/devblok/cubes/gfx"
	"github.com/pkg/errors"
)

// Buffer is a fake host visible buffer backed by a byte slice.
type Buffer struct {
	dev    *Device
	usage  gfx.BufferUsage
	mu     sync.Mutex
	data   []byte
	mapped bool
}

// Size implements gfx.Buffer.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Usage returns the usage the buffer was created with.
func (b *Buffer) Usage() gfx.BufferUsage {
	return b.usage
}

// Map implements gfx.Buffer.
func (b *Buffer) Map() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapped {
		b.dev.violate("buffer mapped twice")
		return nil, errors.New("gfxtest: buffer already mapped")
	}
	b.mapped = true
	return b.data, nil
}

// Unmap implements gfx.Buffer.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mapped {
		b.dev.violate("unmap of a buffer not mapped")
	}
	b.mapped = false
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Release implements gfx.Releasable.
func (b *Buffer) Release() {
	b.dev.untrack(b, KindBuffer)
}

// DescriptorSet is a fake descriptor set remembering what it points at.
type DescriptorSet struct {
	dev     *Device
	mu      sync.Mutex
	uniform gfx.Buffer
	texture gfx.Texture
	updates int
}

// Update implements gfx.DescriptorSet.
func (s *DescriptorSet) Update(uniform gfx.Buffer, texture gfx.Texture) error {
	if !s.dev.isLive(uniform) {
		s.dev.violate("descriptor update with a dead buffer")
	}
	s.mu.Lock()
	s.uniform = uniform
	s.texture = texture
	s.updates++
	s.mu.Unlock()
	return nil
}

// Bound returns the buffer and texture of the last update.
func (s *DescriptorSet) Bound() (gfx.Buffer, gfx.Texture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniform, s.texture
}

// Updates returns the count of Update calls.
func (s *DescriptorSet) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Release implements gfx.Releasable.
func (s *DescriptorSet) Release() {
	s.dev.untrack(s, KindDescriptorSet)
}

// Semaphore is a fake semaphore.
type Semaphore struct {
	dev *Device
}

// Release implements gfx.Releasable.
func (s *Semaphore) Release() {
	s.dev.untrack(s, KindSemaphore)
}

// Fence is a fake fence, signalled on submit unless fences hang.
type Fence struct {
	dev  *Device
	once sync.Once
	ch   chan struct{}
	mu   sync.Mutex
}

func (f *Fence) done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		f.ch = make(chan struct{})
	}
	return f.ch
}

func (f *Fence) signal() {
	f.done()
	f.once.Do(func() { close(f.ch) })
}

// Release implements gfx.Releasable.
func (f *Fence) Release() {
	f.dev.untrack(f, KindFence)
}

// CommandPool is a fake command pool. Releasing it releases
// every command buffer allocated from it.
type CommandPool struct {
	dev     *Device
	mu      sync.Mutex
	buffers []*CommandBuffer
}

// Allocate implements gfx.CommandPool.
func (p *CommandPool) Allocate(level gfx.Level) (gfx.CommandBuffer, error) {
	if !p.dev.isLive(p) {
		p.dev.violate("allocate from a dead command pool")
		return nil, errors.New("gfxtest: command pool released")
	}
	cb := &CommandBuffer{dev: p.dev, pool: p, level: level, index: -1}
	p.dev.track(cb, KindCommandBuffer)
	if level == gfx.Secondary {
		p.dev.mu.Lock()
		cb.index = len(p.dev.secondaries)
		p.dev.secondaries = append(p.dev.secondaries, cb)
		p.dev.mu.Unlock()
	}
	p.mu.Lock()
	p.buffers = append(p.buffers, cb)
	p.mu.Unlock()
	return cb, nil
}

// Release implements gfx.Releasable.
func (p *CommandPool) Release() {
	p.mu.Lock()
	buffers := p.buffers
	p.buffers = nil
	p.mu.Unlock()
	for _, cb := range buffers {
		p.dev.untrack(cb, KindCommandBuffer)
	}
	p.dev.untrack(p, KindCommandPool)
}
