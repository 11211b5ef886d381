// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"sync"
	"time"

	"github.com/devblok/cubes/gfx"
)

// Op is the name of a recorded command.
type Op string

// Recorded operations.
const (
	OpBeginRenderPass   Op = "BeginRenderPass"
	OpEndRenderPass     Op = "EndRenderPass"
	OpBindPipeline      Op = "BindPipeline"
	OpBindDescriptorSet Op = "BindDescriptorSet"
	OpBindVertexBuffer  Op = "BindVertexBuffer"
	OpSetViewport       Op = "SetViewport"
	OpSetScissor        Op = "SetScissor"
	OpDraw              Op = "Draw"
	OpExecuteCommands   Op = "ExecuteCommands"
	OpPresentBarrier    Op = "PresentBarrier"
)

// Command is one recorded command.
type Command struct {
	Op       Op
	Seq      int64
	Image    uint32
	Contents gfx.SubpassContents
	Vertices uint32
	Target   interface{}
	Executed []*CommandBuffer
}

// CommandBuffer is a fake command buffer that records what it is told.
type CommandBuffer struct {
	dev   *Device
	pool  *CommandPool
	level gfx.Level
	index int

	mu        sync.Mutex
	recording bool
	inPass    bool
	contents  gfx.SubpassContents
	inherit   *gfx.Inheritance
	commands  []Command
	endSeq    int64
	begins    int
}

// Index returns the allocation order of a secondary buffer, -1 for primaries.
func (cb *CommandBuffer) Index() int {
	return cb.index
}

// Level returns the buffer level.
func (cb *CommandBuffer) Level() gfx.Level {
	return cb.level
}

// Commands returns the commands of the latest recording.
func (cb *CommandBuffer) Commands() []Command {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]Command(nil), cb.commands...)
}

// Ops returns the operations of the latest recording.
func (cb *CommandBuffer) Ops() []Op {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	ops := make([]Op, 0, len(cb.commands))
	for _, c := range cb.commands {
		ops = append(ops, c.Op)
	}
	return ops
}

// Find returns the first command with the given op.
func (cb *CommandBuffer) Find(op Op) (Command, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for _, c := range cb.commands {
		if c.Op == op {
			return c, true
		}
	}
	return Command{}, false
}

// EndSeq returns the sequence stamp taken when recording last ended.
func (cb *CommandBuffer) EndSeq() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.endSeq
}

// Inheritance returns the inheritance given to the latest Begin.
func (cb *CommandBuffer) Inheritance() *gfx.Inheritance {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.inherit
}

// Begins returns how many times recording was started.
func (cb *CommandBuffer) Begins() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.begins
}

// Recording reports whether the buffer is between Begin and End.
func (cb *CommandBuffer) Recording() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.recording
}

func (cb *CommandBuffer) live() bool {
	return cb.dev.isLive(cb)
}

// Begin implements gfx.CommandBuffer.
func (cb *CommandBuffer) Begin(inherit *gfx.Inheritance) error {
	if !cb.live() {
		cb.dev.violate("begin of a released command buffer")
	}
	if cb.level == gfx.Secondary && inherit == nil {
		cb.dev.violate("secondary command buffer begun without inheritance")
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.recording {
		cb.dev.violate("begin of a command buffer already recording")
	}
	cb.recording = true
	cb.commands = nil
	cb.inherit = inherit
	cb.begins++
	// secondaries continue the render pass of their primary
	cb.inPass = cb.level == gfx.Secondary
	cb.contents = gfx.ContentsInline
	return nil
}

// End implements gfx.CommandBuffer.
func (cb *CommandBuffer) End() error {
	var err error
	if cb.level == gfx.Secondary {
		if delay := cb.dev.recordDelay(cb.index); delay > 0 {
			time.Sleep(delay)
		}
		err = cb.dev.endError(cb.index)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.recording {
		cb.dev.violate("end of a command buffer not recording")
	}
	if cb.level == gfx.Primary && cb.inPass {
		cb.dev.violate("end of a primary command buffer inside a render pass")
	}
	cb.recording = false
	cb.inPass = false
	cb.endSeq = cb.dev.stamp()
	return err
}

func (cb *CommandBuffer) record(c Command, inline bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.recording {
		cb.dev.violate("%s recorded outside of Begin/End", c.Op)
	}
	if inline && cb.level == gfx.Primary && cb.inPass && cb.contents == gfx.ContentsSecondary {
		cb.dev.violate("%s recorded inline into a pass with secondary contents", c.Op)
	}
	if c.Op == OpDraw && !cb.inPass {
		cb.dev.violate("draw outside of a render pass")
	}
	c.Seq = cb.dev.stamp()
	cb.commands = append(cb.commands, c)
}

// BeginRenderPass implements gfx.CommandBuffer.
func (cb *CommandBuffer) BeginRenderPass(image uint32, contents gfx.SubpassContents) {
	if cb.level != gfx.Primary {
		cb.dev.violate("render pass begun on a secondary command buffer")
	}
	cb.record(Command{Op: OpBeginRenderPass, Image: image, Contents: contents}, false)
	cb.mu.Lock()
	if cb.inPass {
		cb.dev.violate("render pass begun twice")
	}
	cb.inPass = true
	cb.contents = contents
	cb.mu.Unlock()
}

// EndRenderPass implements gfx.CommandBuffer.
func (cb *CommandBuffer) EndRenderPass() {
	cb.record(Command{Op: OpEndRenderPass}, false)
	cb.mu.Lock()
	if !cb.inPass {
		cb.dev.violate("render pass ended without being begun")
	}
	cb.inPass = false
	cb.mu.Unlock()
}

// BindPipeline implements gfx.CommandBuffer.
func (cb *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	cb.record(Command{Op: OpBindPipeline, Target: p}, true)
}

// BindDescriptorSet implements gfx.CommandBuffer.
func (cb *CommandBuffer) BindDescriptorSet(p gfx.Pipeline, set gfx.DescriptorSet) {
	cb.record(Command{Op: OpBindDescriptorSet, Target: set}, true)
}

// BindVertexBuffer implements gfx.CommandBuffer.
func (cb *CommandBuffer) BindVertexBuffer(b gfx.Buffer) {
	cb.record(Command{Op: OpBindVertexBuffer, Target: b}, true)
}

// SetViewport implements gfx.CommandBuffer.
func (cb *CommandBuffer) SetViewport(v gfx.Viewport) {
	cb.record(Command{Op: OpSetViewport, Target: v}, true)
}

// SetScissor implements gfx.CommandBuffer.
func (cb *CommandBuffer) SetScissor(r gfx.Rect2D) {
	cb.record(Command{Op: OpSetScissor, Target: r}, true)
}

// Draw implements gfx.CommandBuffer.
func (cb *CommandBuffer) Draw(vertices, instances uint32) {
	cb.record(Command{Op: OpDraw, Vertices: vertices}, true)
}

// ExecuteCommands implements gfx.CommandBuffer.
func (cb *CommandBuffer) ExecuteCommands(secondaries ...gfx.CommandBuffer) {
	if cb.level != gfx.Primary {
		cb.dev.violate("execute commands on a secondary command buffer")
	}
	executed := make([]*CommandBuffer, 0, len(secondaries))
	for _, s := range secondaries {
		sc, ok := s.(*CommandBuffer)
		if !ok || sc.level != gfx.Secondary {
			cb.dev.violate("execute of a non secondary command buffer")
			continue
		}
		if sc.Recording() {
			cb.dev.violate("execute of secondary %d still recording", sc.index)
		}
		executed = append(executed, sc)
	}
	cb.mu.Lock()
	if !cb.inPass || cb.contents != gfx.ContentsSecondary {
		cb.dev.violate("execute commands outside of a pass with secondary contents")
	}
	cb.mu.Unlock()
	cb.record(Command{Op: OpExecuteCommands, Executed: executed}, false)
}

// PresentBarrier implements gfx.CommandBuffer.
func (cb *CommandBuffer) PresentBarrier(image uint32) {
	cb.mu.Lock()
	inPass := cb.inPass
	cb.mu.Unlock()
	if inPass {
		cb.dev.violate("present barrier inside a render pass")
	}
	cb.record(Command{Op: OpPresentBarrier, Image: image}, false)
}
