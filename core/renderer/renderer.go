// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package renderer draws one cube per worker. Every frame the workers record
// their own secondary command buffers in parallel, which are then executed
// from a single primary command buffer in worker order.
package renderer

import (
	"time"

	"github.com/devblok/cubes/core/workers"
	"github.com/devblok/cubes/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Renderer drives frames on a gfx.Device.
// RenderFrame and Destroy must be called from one goroutine.
type Renderer struct {
	dev gfx.Device
	cfg Configuration
	log logrus.FieldLogger

	resources []*Resource
	works     []*workers.Work
	pool      *workers.Pool

	commandPool gfx.CommandPool
	primary     gfx.CommandBuffer

	view       glm.Mat4
	projection glm.Mat4

	// written before works are submitted, read-only while they run
	dt    float32
	image uint32

	frames    uint64
	destroyed bool
}

// New allocates the frame resources and starts the workers.
func New(dev gfx.Device, cfg Configuration, logger logrus.FieldLogger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	extent := dev.Extent()
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Errorf("renderer: device has an empty extent %dx%d", extent.Width, extent.Height)
	}
	aspect := float32(extent.Width) / float32(extent.Height)

	r := &Renderer{
		dev:        dev,
		cfg:        cfg,
		log:        logger,
		view:       cfg.Camera.View(),
		projection: cfg.Camera.Projection(aspect),
	}

	if err := r.allocate(); err != nil {
		r.Destroy()
		return nil, errors.Wrap(err, "renderer")
	}

	r.log.WithFields(logrus.Fields{
		"workers":       cfg.Workers,
		"multithreaded": cfg.Multithreaded,
	}).Info("renderer created")
	return r, nil
}

func (r *Renderer) allocate() error {
	r.resources = make([]*Resource, 0, r.cfg.Workers)
	for i := 0; i < r.cfg.Workers; i++ {
		res, err := newResource(r.dev, i, r.cfg.Multithreaded)
		if err != nil {
			return errors.Wrapf(err, "resource %d", i)
		}
		r.resources = append(r.resources, res)
	}

	var err error
	if r.commandPool, err = r.dev.NewCommandPool(); err != nil {
		return errors.Wrap(err, "primary command pool")
	}
	if r.primary, err = r.commandPool.Allocate(gfx.Primary); err != nil {
		return errors.Wrap(err, "primary command buffer")
	}

	if !r.cfg.Multithreaded {
		return nil
	}

	r.works = make([]*workers.Work, r.cfg.Workers)
	for i := range r.works {
		owner := i
		r.works[i] = workers.NewWork(func() error {
			return r.BuildSecondaryBuffer(owner, r.dt, r.image)
		})
	}
	if r.pool, err = workers.New(r.cfg.Workers, r.log); err != nil {
		return err
	}
	return nil
}

// Workers returns the amount of frame resources.
func (r *Renderer) Workers() int {
	return len(r.resources)
}

// Resource returns the frame resource of worker i.
func (r *Renderer) Resource(i int) *Resource {
	return r.resources[i]
}

// Frames returns the amount of frames rendered.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// RenderFrame renders and presents one frame, advancing every cube by dt
// seconds. Any returned error leaves the renderer in an undefined state
// and should be treated as fatal.
func (r *Renderer) RenderFrame(dt float32) error {
	if r.destroyed {
		return errors.New("renderer: render after destroy")
	}

	frame := r.frames + 1
	start := time.Now()
	image, err := r.renderFrame(dt)
	if err != nil {
		return errors.Wrapf(err, "frame %d", frame)
	}
	r.frames = frame

	r.log.WithFields(logrus.Fields{
		"frame": frame,
		"image": image,
		"dt":    dt,
		"took":  time.Since(start),
	}).Debug("frame presented")
	return nil
}

func (r *Renderer) renderFrame(dt float32) (image uint32, err error) {
	acquired, err := r.dev.NewSemaphore()
	if err != nil {
		return 0, errors.Wrap(err, "acquire semaphore")
	}
	defer acquired.Release()

	rendered, err := r.dev.NewSemaphore()
	if err != nil {
		return 0, errors.Wrap(err, "render semaphore")
	}
	defer rendered.Release()

	fence, err := r.dev.NewFence()
	if err != nil {
		return 0, errors.Wrap(err, "fence")
	}
	defer fence.Release()

	if image, err = r.dev.AcquireNextImage(acquired); err != nil {
		return 0, errors.Wrap(err, "acquire image")
	}

	if err = r.primary.Begin(nil); err != nil {
		return image, errors.Wrap(err, "begin primary")
	}

	if r.cfg.Multithreaded {
		r.primary.BeginRenderPass(image, gfx.ContentsSecondary)
		if err = r.fanOut(dt, image); err != nil {
			return image, err
		}
		secondaries := make([]gfx.CommandBuffer, len(r.resources))
		for i, res := range r.resources {
			secondaries[i] = res.commands
		}
		r.primary.ExecuteCommands(secondaries...)
	} else {
		r.primary.BeginRenderPass(image, gfx.ContentsInline)
		for _, res := range r.resources {
			if err = r.update(res, dt); err != nil {
				return image, errors.Wrapf(err, "resource %d", res.index)
			}
			r.draw(r.primary, res)
		}
	}

	r.primary.EndRenderPass()
	r.primary.PresentBarrier(image)
	if err = r.primary.End(); err != nil {
		return image, errors.Wrap(err, "end primary")
	}

	if err = r.dev.Submit(r.primary, acquired, rendered, fence); err != nil {
		return image, errors.Wrap(err, "submit")
	}

	if err = r.dev.WaitForFence(fence, r.cfg.FenceTimeout); err != nil {
		if errors.Cause(err) == gfx.ErrTimeout {
			return image, errors.Wrapf(err, "GPU did not finish within %s", r.cfg.FenceTimeout)
		}
		return image, errors.Wrap(err, "wait for fence")
	}

	if err = r.dev.Present(image, rendered); err != nil {
		return image, errors.Wrap(err, "present")
	}
	return image, nil
}

// fanOut hands every resource to its worker and waits for all of them.
// Every submitted work is joined, even when one of them fails, so no
// worker is still recording once it returns.
func (r *Renderer) fanOut(dt float32, image uint32) error {
	r.dt = dt
	r.image = image

	var (
		submitted int
		first     error
	)
	for _, w := range r.works {
		if err := r.pool.Submit(w); err != nil {
			first = errors.Wrap(err, "submit work")
			break
		}
		submitted++
	}
	for _, w := range r.works[:submitted] {
		if err := r.pool.Join(w); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Destroy waits for the device to go idle, stops the workers and releases
// everything New allocated. Calling it again does nothing.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true

	if err := r.dev.WaitIdle(); err != nil {
		r.log.WithError(err).Warn("device did not go idle")
	}
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	if r.commandPool != nil {
		r.commandPool.Release()
		r.commandPool = nil
		r.primary = nil
	}
	for i := len(r.resources) - 1; i >= 0; i-- {
		r.resources[i].Release()
	}

	r.log.WithFields(logrus.Fields{
		"workers": len(r.resources),
		"frames":  r.frames,
	}).Info("renderer destroyed")
}
