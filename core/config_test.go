// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/cubes/core"
	"github.com/gobuffalo/envy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfiguration(t *testing.T) {
	cfg := core.DefaultConfiguration()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Renderer.Workers)
	assert.True(t, cfg.Renderer.Multithreaded)
	assert.Equal(t, 2*time.Second, cfg.Renderer.FenceTimeout)
}

func TestLoadConfigurationDefaults(t *testing.T) {
	cfg, err := core.LoadConfiguration("", "")
	require.NoError(t, err)
	assert.Equal(t, core.DefaultConfiguration().Renderer.Workers, cfg.Renderer.Workers)
}

func TestLoadConfigurationFile(t *testing.T) {
	path := writeFile(t, "koru.toml", `
assets = "shaders.kar"

[time]
fps = 30

[device]
width = 800
height = 600

[renderer]
workers = 4
multithreaded = false
fence_timeout = "500ms"
`)

	cfg, err := core.LoadConfiguration(path, "")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Time.FramesPerSecond)
	assert.Equal(t, uint32(800), cfg.Device.ScreenWidth)
	assert.Equal(t, uint32(600), cfg.Device.ScreenHeight)
	assert.Equal(t, 4, cfg.Renderer.Workers)
	assert.False(t, cfg.Renderer.Multithreaded)
	assert.Equal(t, 500*time.Millisecond, cfg.Renderer.FenceTimeout)
	assert.Equal(t, "shaders.kar", cfg.Assets)

	// untouched keys keep their defaults
	assert.Equal(t, uint32(3), cfg.Device.SwapchainSize)
	assert.Equal(t, float32(1), cfg.Renderer.AngularVelocity)
}

func TestLoadConfigurationEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "koru.toml", "[renderer]\nworkers = 4\n")
	env := writeFile(t, "koru.env", "KORU_WORKERS=6\nKORU_FENCE_TIMEOUT=1s\nKORU_DEBUG=true\n")

	cfg, err := core.LoadConfiguration(path, env)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Renderer.Workers)
	assert.Equal(t, time.Second, cfg.Renderer.FenceTimeout)
	assert.True(t, cfg.Device.Debug)
}

func TestLoadConfigurationProcessEnv(t *testing.T) {
	envy.Temp(func() {
		envy.Set(core.EnvMultithreaded, "false")
		envy.Set(core.EnvWidth, "640")

		cfg, err := core.LoadConfiguration("", "")
		require.NoError(t, err)
		assert.False(t, cfg.Renderer.Multithreaded)
		assert.Equal(t, uint32(640), cfg.Device.ScreenWidth)
	})
}

func TestLoadConfigurationErrors(t *testing.T) {
	_, err := core.LoadConfiguration(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.Error(t, err)

	_, err = core.LoadConfiguration(writeFile(t, "bad.toml", "[renderer\n"), "")
	assert.Error(t, err)

	_, err = core.LoadConfiguration(writeFile(t, "bad.toml", "[renderer]\nfence_timeout = \"soon\"\n"), "")
	assert.Error(t, err)

	_, err = core.LoadConfiguration("", writeFile(t, "bad.env", "KORU_WORKERS=many\n"))
	assert.Error(t, err)

	_, err = core.LoadConfiguration("", writeFile(t, "zero.env", "KORU_WORKERS=0\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*core.Configuration){
		"negative fps":   func(c *core.Configuration) { c.Time.FramesPerSecond = -1 },
		"no poll delay":  func(c *core.Configuration) { c.Time.EventPollDelay = 0 },
		"empty screen":   func(c *core.Configuration) { c.Device.ScreenWidth = 0 },
		"one image":      func(c *core.Configuration) { c.Device.SwapchainSize = 1 },
		"no workers":     func(c *core.Configuration) { c.Renderer.Workers = 0 },
		"no fence limit": func(c *core.Configuration) { c.Renderer.FenceTimeout = 0 },
	} {
		cfg := core.DefaultConfiguration()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
