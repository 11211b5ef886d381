// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Environment variables overriding the configuration
const (
	EnvWorkers       = "KORU_WORKERS"
	EnvMultithreaded = "KORU_MULTITHREADED"
	EnvFps           = "KORU_FPS"
	EnvFenceTimeout  = "KORU_FENCE_TIMEOUT"
	EnvWidth         = "KORU_WIDTH"
	EnvHeight        = "KORU_HEIGHT"
	EnvSwapchainSize = "KORU_SWAPCHAIN_SIZE"
	EnvDebug         = "KORU_DEBUG"
	EnvAssets        = "KORU_ASSETS"
)

// fileConfiguration is the layout of the TOML configuration file.
type fileConfiguration struct {
	Time struct {
		FramesPerSecond int `toml:"fps"`
		EventPollDelay  int `toml:"event_poll_delay"`
	} `toml:"time"`

	Device struct {
		SwapchainSize uint32   `toml:"swapchain_size"`
		Extensions    []string `toml:"extensions"`
		Width         uint32   `toml:"width"`
		Height        uint32   `toml:"height"`
		Debug         bool     `toml:"debug"`
	} `toml:"device"`

	Renderer struct {
		Workers         int     `toml:"workers"`
		Multithreaded   bool    `toml:"multithreaded"`
		FenceTimeout    string  `toml:"fence_timeout"`
		AngularVelocity float32 `toml:"angular_velocity"`
		Spacing         float32 `toml:"spacing"`
	} `toml:"renderer"`

	Assets string `toml:"assets"`
}

func toFile(c Configuration) fileConfiguration {
	var f fileConfiguration
	f.Time.FramesPerSecond = c.Time.FramesPerSecond
	f.Time.EventPollDelay = c.Time.EventPollDelay
	f.Device.SwapchainSize = c.Device.SwapchainSize
	f.Device.Extensions = c.Device.DeviceExtensions
	f.Device.Width = c.Device.ScreenWidth
	f.Device.Height = c.Device.ScreenHeight
	f.Device.Debug = c.Device.Debug
	f.Renderer.Workers = c.Renderer.Workers
	f.Renderer.Multithreaded = c.Renderer.Multithreaded
	f.Renderer.FenceTimeout = c.Renderer.FenceTimeout.String()
	f.Renderer.AngularVelocity = c.Renderer.AngularVelocity
	f.Renderer.Spacing = c.Renderer.Spacing
	f.Assets = c.Assets
	return f
}

func (f fileConfiguration) apply(c *Configuration) error {
	timeout, err := time.ParseDuration(f.Renderer.FenceTimeout)
	if err != nil {
		return errors.Wrap(err, "renderer.fence_timeout")
	}
	c.Time.FramesPerSecond = f.Time.FramesPerSecond
	c.Time.EventPollDelay = f.Time.EventPollDelay
	c.Device.SwapchainSize = f.Device.SwapchainSize
	c.Device.DeviceExtensions = f.Device.Extensions
	c.Device.ScreenWidth = f.Device.Width
	c.Device.ScreenHeight = f.Device.Height
	c.Device.Debug = f.Device.Debug
	c.Renderer.Workers = f.Renderer.Workers
	c.Renderer.Multithreaded = f.Renderer.Multithreaded
	c.Renderer.FenceTimeout = timeout
	c.Renderer.AngularVelocity = f.Renderer.AngularVelocity
	c.Renderer.Spacing = f.Renderer.Spacing
	c.Assets = f.Assets
	return nil
}

// LoadConfiguration builds the configuration from the defaults, the TOML
// file at tomlPath and the KORU_* variables, later sources winning.
// Variables are looked up in the dotenv file at envPath first, then in the
// process environment. Either path may be empty.
func LoadConfiguration(tomlPath, envPath string) (Configuration, error) {
	cfg := DefaultConfiguration()

	if tomlPath != "" {
		data, err := os.ReadFile(tomlPath)
		if err != nil {
			return cfg, errors.Wrap(err, "config")
		}
		file := toFile(cfg)
		if err := toml.Unmarshal(data, &file); err != nil {
			return cfg, errors.Wrapf(err, "config: %s", tomlPath)
		}
		if err := file.apply(&cfg); err != nil {
			return cfg, errors.Wrapf(err, "config: %s", tomlPath)
		}
	}

	dotenv := map[string]string{}
	if envPath != "" {
		var err error
		if dotenv, err = godotenv.Read(envPath); err != nil {
			return cfg, errors.Wrap(err, "config")
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := dotenv[key]; ok {
			return v, true
		}
		v, err := envy.MustGet(key)
		return v, err == nil
	}
	if err := overlay(&cfg, lookup); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func overlay(cfg *Configuration, lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvWorkers, &cfg.Renderer.Workers},
		{EnvFps, &cfg.Time.FramesPerSecond},
	}
	for _, e := range ints {
		if v, ok := lookup(e.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrap(err, e.key)
			}
			*e.dst = n
		}
	}

	uints := []struct {
		key string
		dst *uint32
	}{
		{EnvWidth, &cfg.Device.ScreenWidth},
		{EnvHeight, &cfg.Device.ScreenHeight},
		{EnvSwapchainSize, &cfg.Device.SwapchainSize},
	}
	for _, e := range uints {
		if v, ok := lookup(e.key); ok {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return errors.Wrap(err, e.key)
			}
			*e.dst = uint32(n)
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvMultithreaded, &cfg.Renderer.Multithreaded},
		{EnvDebug, &cfg.Device.Debug},
	}
	for _, e := range bools {
		if v, ok := lookup(e.key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrap(err, e.key)
			}
			*e.dst = b
		}
	}

	if v, ok := lookup(EnvFenceTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, EnvFenceTimeout)
		}
		cfg.Renderer.FenceTimeout = d
	}
	if v, ok := lookup(EnvAssets); ok {
		cfg.Assets = v
	}
	return nil
}
