// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"time"

	"github.com/devblok/cubes/model"
	"github.com/pkg/errors"
)

// Configuration describes the renderer configuration
type Configuration struct {
	// Workers is the amount of recording goroutines, and with it
	// the amount of frame resources and cubes drawn.
	Workers int

	// Multithreaded records secondary command buffers on the workers.
	// When false every draw is recorded inline by the caller of RenderFrame.
	Multithreaded bool

	// FenceTimeout bounds the wait for the GPU to finish a frame.
	FenceTimeout time.Duration

	// AngularVelocity of every cube around Y, in radians per second.
	AngularVelocity float32

	// Spacing is the distance between cubes on the X and Z axes.
	Spacing float32

	Camera model.Camera
}

// DefaultConfiguration returns the configuration used when nothing is set
func DefaultConfiguration() Configuration {
	return Configuration{
		Workers:         3,
		Multithreaded:   true,
		FenceTimeout:    2 * time.Second,
		AngularVelocity: 1,
		Spacing:         3,
		Camera:          model.DefaultCamera(),
	}
}

// Validate checks the configuration for values the renderer cannot work with
func (c Configuration) Validate() error {
	if c.Workers < 1 {
		return errors.Errorf("renderer: workers must be at least 1, got %d", c.Workers)
	}
	if c.FenceTimeout <= 0 {
		return errors.Errorf("renderer: fence timeout must be positive, got %s", c.FenceTimeout)
	}
	return nil
}
