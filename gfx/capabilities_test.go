// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"testing"

	"github.com/devblok/cubes/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCapabilities = gfx.Capabilities{
	MemoryTypes: []gfx.MemoryType{
		{Properties: gfx.MemoryDeviceLocal},
		{Properties: gfx.MemoryHostVisible},
		{Properties: gfx.MemoryHostVisible | gfx.MemoryHostCoherent},
	},
}

func TestFindMemoryType(t *testing.T) {
	idx, err := testCapabilities.FindMemoryType(0xFF, gfx.MemoryHostVisible|gfx.MemoryHostCoherent)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx)

	idx, err = testCapabilities.FindMemoryType(0xFF, gfx.MemoryHostVisible)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)
}

func TestFindMemoryTypeRespectsFilter(t *testing.T) {
	idx, err := testCapabilities.FindMemoryType(0x4, gfx.MemoryHostVisible)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx)
}

func TestFindMemoryTypeMissing(t *testing.T) {
	_, err := testCapabilities.FindMemoryType(0x1, gfx.MemoryHostVisible)
	assert.Equal(t, gfx.ErrNoMemoryType, err)

	_, err = gfx.Capabilities{}.FindMemoryType(0xFFFFFFFF, gfx.MemoryDeviceLocal)
	assert.Equal(t, gfx.ErrNoMemoryType, err)
}

func TestFullViewport(t *testing.T) {
	e := gfx.Extent2D{Width: 800, Height: 600}
	v := gfx.FullViewport(e)
	assert.Equal(t, float32(800), v.Width)
	assert.Equal(t, float32(600), v.Height)
	assert.Equal(t, float32(1), v.MaxDepth)
	assert.Equal(t, e, gfx.FullScissor(e).Extent)
}
