// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/cubes/core/renderer"
	"github.com/pkg/errors"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Device   DeviceConfiguration
	Renderer renderer.Configuration

	// Assets is the path to a kar archive holding the shaders.
	// When empty the shaders bundled into the binary are used.
	Assets string
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls, in milliseconds
	EventPollDelay int
}

// DeviceConfiguration is used to configure the GPU device and its swapchain
type DeviceConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// Debug enables the validation layers and the debug report callback
	Debug bool
}

// DefaultConfiguration returns the configuration used when nothing is set
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  16,
		},
		Device: DeviceConfiguration{
			SwapchainSize:    3,
			DeviceExtensions: []string{"VK_KHR_swapchain"},
			ScreenWidth:      1280,
			ScreenHeight:     720,
		},
		Renderer: renderer.DefaultConfiguration(),
	}
}

// Validate checks every section of the configuration
func (c Configuration) Validate() error {
	if c.Time.FramesPerSecond < 0 {
		return errors.Errorf("config: fps must not be negative, got %d", c.Time.FramesPerSecond)
	}
	if c.Time.EventPollDelay < 1 {
		return errors.Errorf("config: event poll delay must be positive, got %d", c.Time.EventPollDelay)
	}
	if c.Device.ScreenWidth == 0 || c.Device.ScreenHeight == 0 {
		return errors.Errorf("config: screen size %dx%d is empty", c.Device.ScreenWidth, c.Device.ScreenHeight)
	}
	if c.Device.SwapchainSize < 2 {
		return errors.Errorf("config: swapchain needs at least 2 images, got %d", c.Device.SwapchainSize)
	}
	return errors.Wrap(c.Renderer.Validate(), "config")
}
