// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds the engine services shared by the commands:
// configuration, time keeping and asset lookup.
package core

import (
	"github.com/devblok/cubes/utility/kar"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
)

//go:generate glslangValidator -V ../shaders/cube.vert -o ../shaders/cube.vert.spv
//go:generate glslangValidator -V ../shaders/cube.frag -o ../shaders/cube.frag.spv

// Names of the compiled shaders the renderer draws with
const (
	CubeVertexShader   = "cube.vert.spv"
	CubeFragmentShader = "cube.frag.spv"
)

// Assets is a read only store of named files
type Assets interface {
	// Find returns the contents of the named file
	Find(name string) ([]byte, error)
}

// NewBoxAssets returns the shaders bundled into the binary
func NewBoxAssets() Assets {
	return packr.NewBox("../shaders")
}

// OpenAssets opens the kar archive at path as an asset store.
// With an empty path the bundled assets are returned.
func OpenAssets(path string) (Assets, func() error, error) {
	if path == "" {
		return NewBoxAssets(), func() error { return nil }, nil
	}
	ar, err := kar.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "assets")
	}
	return ar, ar.Close, nil
}

// AssetsFunc adapts a function to Assets
type AssetsFunc func(name string) ([]byte, error)

// Find implements Assets
func (f AssetsFunc) Find(name string) ([]byte, error) {
	return f(name)
}
