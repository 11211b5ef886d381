// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/devblok/cubes/core/renderer"
	"github.com/devblok/cubes/gfx"
	"github.com/devblok/cubes/gfx/gfxtest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func newRenderer(t testing.TB, dev *gfxtest.Device, cfg renderer.Configuration) *renderer.Renderer {
	r, err := renderer.New(dev, cfg, quietLogger())
	require.NoError(t, err)
	return r
}

// lastStitch returns the primary buffer of the last submitted frame
// and its ExecuteCommands command.
func lastStitch(t *testing.T, dev *gfxtest.Device) (*gfxtest.CommandBuffer, gfxtest.Command) {
	submitted := dev.Submitted()
	require.NotEmpty(t, submitted)
	primary := submitted[len(submitted)-1]
	exec, ok := primary.Find(gfxtest.OpExecuteCommands)
	require.True(t, ok, "primary buffer has no ExecuteCommands")
	return primary, exec
}

func indices(cbs []*gfxtest.CommandBuffer) []int {
	out := make([]int, len(cbs))
	for i, cb := range cbs {
		out[i] = cb.Index()
	}
	return out
}

func TestTransformsStayWithTheirOwner(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	cfg := renderer.DefaultConfiguration()
	r := newRenderer(t, dev, cfg)
	defer r.Destroy()

	rotations := []glm.Mat4{glm.Ident4(), glm.Ident4(), glm.Ident4()}
	for _, dt := range []float32{0.016, 0.033, 0.1, 0.25, 0.016} {
		require.NoError(t, r.RenderFrame(dt))

		for i := 0; i < 3; i++ {
			var want glm.Mat4
			rotations[i], want = renderer.ComputeTransform(rotations[i], i, cfg.AngularVelocity*dt, cfg.Spacing)

			res := r.Resource(i)
			assert.Equal(t, want, res.Transform(), "resource %d", i)

			u, err := res.Uniform()
			require.NoError(t, err)
			assert.Equal(t, want, u.Model, "uniform of resource %d", i)
		}
	}
	assert.Equal(t, uint64(5), r.Frames())
	assert.Empty(t, dev.Violations())
}

func TestStitchWaitsForEveryWorker(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	dev.SetRecordDelay(0, 20*time.Millisecond)
	dev.SetRecordDelay(2, 5*time.Millisecond)

	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	for frame := 0; frame < 3; frame++ {
		require.NoError(t, r.RenderFrame(0.016))

		_, exec := lastStitch(t, dev)
		require.Len(t, exec.Executed, 3)
		for _, s := range exec.Executed {
			assert.Less(t, s.EndSeq(), exec.Seq, "secondary %d ended after the stitch", s.Index())
		}
	}
	assert.Empty(t, dev.Violations())
}

func TestDrawOrderIsFixed(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	// finish in reverse order
	dev.SetRecordDelay(0, 30*time.Millisecond)
	dev.SetRecordDelay(1, 15*time.Millisecond)

	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	require.NoError(t, r.RenderFrame(0.016))
	_, exec := lastStitch(t, dev)
	assert.Equal(t, []int{0, 1, 2}, indices(exec.Executed))

	sec := dev.Secondaries()
	assert.Less(t, sec[2].EndSeq(), sec[1].EndSeq())
	assert.Less(t, sec[1].EndSeq(), sec[0].EndSeq())

	rnd := rand.New(rand.NewSource(42))
	for frame := 0; frame < 10; frame++ {
		for i := 0; i < 3; i++ {
			dev.SetRecordDelay(i, time.Duration(rnd.Intn(5))*time.Millisecond)
		}
		require.NoError(t, r.RenderFrame(0.016))
		_, exec := lastStitch(t, dev)
		assert.Equal(t, []int{0, 1, 2}, indices(exec.Executed))
	}
	assert.Empty(t, dev.Violations())
}

func TestDestroyReleasesEverything(t *testing.T) {
	for _, multithreaded := range []bool{true, false} {
		dev := gfxtest.NewDevice(3)
		cfg := renderer.DefaultConfiguration()
		cfg.Multithreaded = multithreaded

		r := newRenderer(t, dev, cfg)
		for i := 0; i < 4; i++ {
			require.NoError(t, r.RenderFrame(0.016))
		}

		r.Destroy()
		r.Destroy()

		assert.Equal(t, dev.Allocated(), dev.Released(), "multithreaded=%v", multithreaded)
		assert.Zero(t, dev.Live(), "multithreaded=%v", multithreaded)
		assert.Empty(t, dev.Violations(), "multithreaded=%v", multithreaded)
		assert.Error(t, r.RenderFrame(0.016))
	}
}

func TestTransientsReleasedEveryFrame(t *testing.T) {
	dev := gfxtest.NewDevice(2)
	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	live := dev.Live()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.RenderFrame(0.016))
		assert.Equal(t, live, dev.Live())
	}
	assert.Equal(t, 6, dev.Allocated(gfxtest.KindSemaphore))
	assert.Equal(t, 6, dev.Released(gfxtest.KindSemaphore))
	assert.Equal(t, 3, dev.Allocated(gfxtest.KindFence))
	assert.Equal(t, 3, dev.Released(gfxtest.KindFence))
}

func TestZeroDeltaKeepsRotation(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	cfg := renderer.DefaultConfiguration()
	r := newRenderer(t, dev, cfg)
	defer r.Destroy()

	require.NoError(t, r.RenderFrame(0))
	for i := 0; i < 3; i++ {
		assert.Equal(t, glm.Ident4(), r.Resource(i).Rotation())
		assert.Equal(t, glm.Translate3D(3*float32(i), 0, -3*float32(i)), r.Resource(i).Transform())
	}

	require.NoError(t, r.RenderFrame(0.5))
	before := make([]glm.Mat4, 3)
	for i := range before {
		before[i] = r.Resource(i).Rotation()
	}

	require.NoError(t, r.RenderFrame(0))
	for i := 0; i < 3; i++ {
		res := r.Resource(i)
		assert.Equal(t, before[i], res.Rotation(), "resource %d rotated on a zero delta", i)

		tr := res.Transform()
		assert.Equal(t, float32(3*i), tr[12])
		assert.Equal(t, float32(0), tr[13])
		assert.Equal(t, -float32(3*i), tr[14])
	}
}

func TestBlockedWorker(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	dev.SetRecordDelay(1, 500*time.Millisecond)

	cfg := renderer.DefaultConfiguration()
	r := newRenderer(t, dev, cfg)
	defer r.Destroy()

	start := time.Now()
	require.NoError(t, r.RenderFrame(0.016))
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(500*time.Millisecond))

	_, exec := lastStitch(t, dev)
	assert.Equal(t, []int{0, 1, 2}, indices(exec.Executed))
	for _, s := range exec.Executed {
		assert.Less(t, s.EndSeq(), exec.Seq)
	}

	for i := 0; i < 3; i++ {
		_, want := renderer.ComputeTransform(glm.Ident4(), i, cfg.AngularVelocity*0.016, cfg.Spacing)
		assert.Equal(t, want, r.Resource(i).Transform())
	}
	assert.Empty(t, dev.Violations())
}

func TestFenceTimeoutIsReported(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	dev.SetHangFences(true)

	cfg := renderer.DefaultConfiguration()
	cfg.FenceTimeout = 20 * time.Millisecond
	r := newRenderer(t, dev, cfg)
	defer r.Destroy()

	err := r.RenderFrame(0.016)
	require.Error(t, err)
	assert.Equal(t, gfx.ErrTimeout, errors.Cause(err))
	assert.Equal(t, 1, dev.FenceWaits(), "fence wait retried")
	assert.Empty(t, dev.Presented())
	assert.Equal(t, uint64(0), r.Frames())
}

func TestFailingWorkerIsJoined(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	failure := errors.New("recording failed")
	dev.SetEndError(0, failure)
	dev.SetRecordDelay(2, 100*time.Millisecond)

	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	err := r.RenderFrame(0.016)
	require.Error(t, err)
	assert.Equal(t, failure, errors.Cause(err))
	assert.Contains(t, err.Error(), "frame 1")

	// the slow worker had finished before the error came back
	for _, s := range dev.Secondaries() {
		assert.False(t, s.Recording(), "secondary %d still recording", s.Index())
		assert.NotZero(t, s.EndSeq(), "secondary %d never ended", s.Index())
	}
	assert.Empty(t, dev.Submitted())
	assert.Empty(t, dev.Presented())
	assert.Equal(t, uint64(0), r.Frames())

	r.Destroy()
	assert.Zero(t, dev.Live())
}

func TestAcquireFailureIsReported(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	dev.SetAcquireError(gfx.ErrOutOfDate)

	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	err := r.RenderFrame(0.016)
	require.Error(t, err)
	assert.Equal(t, gfx.ErrOutOfDate, errors.Cause(err))
	assert.Empty(t, dev.Submitted())

	r.Destroy()
	assert.Zero(t, dev.Live())
}

func TestPassTakesSecondaryContents(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	for frame := 0; frame < 4; frame++ {
		require.NoError(t, r.RenderFrame(0.016))

		primary, _ := lastStitch(t, dev)
		assert.Equal(t, []gfxtest.Op{
			gfxtest.OpBeginRenderPass,
			gfxtest.OpExecuteCommands,
			gfxtest.OpEndRenderPass,
			gfxtest.OpPresentBarrier,
		}, primary.Ops())

		begin, _ := primary.Find(gfxtest.OpBeginRenderPass)
		assert.Equal(t, gfx.ContentsSecondary, begin.Contents)

		image := dev.Presented()[frame]
		assert.Equal(t, image, begin.Image)
		for _, s := range dev.Secondaries() {
			require.NotNil(t, s.Inheritance())
			assert.Equal(t, image, s.Inheritance().Image)
		}
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, dev.Presented())
	assert.Empty(t, dev.Violations())
}

func TestSecondaryRecordsOneCube(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	require.NoError(t, r.RenderFrame(0.016))

	for i, s := range dev.Secondaries() {
		assert.Equal(t, []gfxtest.Op{
			gfxtest.OpBindPipeline,
			gfxtest.OpBindDescriptorSet,
			gfxtest.OpBindVertexBuffer,
			gfxtest.OpSetViewport,
			gfxtest.OpSetScissor,
			gfxtest.OpDraw,
		}, s.Ops())

		draw, _ := s.Find(gfxtest.OpDraw)
		assert.Equal(t, uint32(36), draw.Vertices)

		res := r.Resource(i)
		bind, _ := s.Find(gfxtest.OpBindDescriptorSet)
		assert.Equal(t, res.DescriptorSet(), bind.Target)
		vb, _ := s.Find(gfxtest.OpBindVertexBuffer)
		assert.Equal(t, res.VertexBuffer(), vb.Target)
		vp, _ := s.Find(gfxtest.OpSetViewport)
		assert.Equal(t, gfx.FullViewport(dev.Extent()), vp.Target)

		set := res.DescriptorSet().(*gfxtest.DescriptorSet)
		uniform, texture := set.Bound()
		assert.Equal(t, res.UniformBuffer(), uniform)
		assert.Equal(t, dev.Texture(), texture)
	}
}

func TestInlineMode(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	cfg := renderer.DefaultConfiguration()
	cfg.Multithreaded = false
	r := newRenderer(t, dev, cfg)
	defer r.Destroy()

	require.NoError(t, r.RenderFrame(0.016))
	assert.Empty(t, dev.Secondaries())

	primary := dev.Submitted()[0]
	begin, ok := primary.Find(gfxtest.OpBeginRenderPass)
	require.True(t, ok)
	assert.Equal(t, gfx.ContentsInline, begin.Contents)
	_, ok = primary.Find(gfxtest.OpExecuteCommands)
	assert.False(t, ok)

	var sets []interface{}
	for _, c := range primary.Commands() {
		if c.Op == gfxtest.OpBindDescriptorSet {
			sets = append(sets, c.Target)
		}
	}
	require.Len(t, sets, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, r.Resource(i).DescriptorSet(), sets[i])
		_, want := renderer.ComputeTransform(glm.Ident4(), i, cfg.AngularVelocity*0.016, cfg.Spacing)
		assert.Equal(t, want, r.Resource(i).Transform())
	}
	assert.Empty(t, dev.Violations())
}

func TestWorkerCountIsConfigurable(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	cfg := renderer.DefaultConfiguration()
	cfg.Workers = 5
	r := newRenderer(t, dev, cfg)

	assert.Equal(t, 5, r.Workers())
	require.NoError(t, r.RenderFrame(0.016))
	_, exec := lastStitch(t, dev)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indices(exec.Executed))

	tr := r.Resource(4).Transform()
	assert.Equal(t, float32(12), tr[12])
	assert.Equal(t, float32(-12), tr[14])

	r.Destroy()
	assert.Zero(t, dev.Live())
}

func TestBuildSecondaryBufferRejectsUnknownOwner(t *testing.T) {
	dev := gfxtest.NewDevice(3)
	r := newRenderer(t, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	assert.Error(t, r.BuildSecondaryBuffer(3, 0, 0))
	assert.Error(t, r.BuildSecondaryBuffer(-1, 0, 0))
}

func TestInvalidConfiguration(t *testing.T) {
	dev := gfxtest.NewDevice(3)

	cfg := renderer.DefaultConfiguration()
	cfg.Workers = 0
	_, err := renderer.New(dev, cfg, quietLogger())
	assert.Error(t, err)

	cfg = renderer.DefaultConfiguration()
	cfg.FenceTimeout = 0
	_, err = renderer.New(dev, cfg, quietLogger())
	assert.Error(t, err)

	assert.Zero(t, dev.Allocated())
}

func TestComputeTransform(t *testing.T) {
	rot, tr := renderer.ComputeTransform(glm.Ident4(), 2, 0, 3)
	assert.Equal(t, glm.Ident4(), rot)
	assert.Equal(t, glm.Translate3D(6, 0, -6), tr)

	rot, tr = renderer.ComputeTransform(glm.Ident4(), 1, glm.DegToRad(90), 3)
	assert.InDelta(t, 0, rot[0], 1e-6)
	assert.InDelta(t, float32(-1), rot[2], 1e-6)
	assert.Equal(t, float32(3), tr[12])
	assert.Equal(t, float32(-3), tr[14])
	assert.Equal(t, float32(0), rot[12], "rotation must not carry the offset")
}

func BenchmarkRenderFrame(b *testing.B) {
	dev := gfxtest.NewDevice(3)
	r := newRenderer(b, dev, renderer.DefaultConfiguration())
	defer r.Destroy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := r.RenderFrame(0.016); err != nil {
			b.Fatal(err)
		}
	}
}
