// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/cubes/core"
	"github.com/devblok/cubes/utility/kar"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderTypeOf(t *testing.T) {
	assert.Equal(t, core.VertexShaderType, core.ShaderTypeOf("cube.vert.spv"))
	assert.Equal(t, core.FragmentShaderType, core.ShaderTypeOf("cube.frag.spv"))
	assert.Equal(t, core.UnknownShaderType, core.ShaderTypeOf("cube.vert"))
	assert.Equal(t, core.UnknownShaderType, core.ShaderTypeOf("cube.geom.spv"))
	assert.Equal(t, core.UnknownShaderType, core.ShaderTypeOf("my.cube.vert.spv"))
}

func memAssets(files map[string][]byte) core.Assets {
	return core.AssetsFunc(func(name string) ([]byte, error) {
		if data, ok := files[name]; ok {
			return data, nil
		}
		return nil, errors.Errorf("%s not found", name)
	})
}

func TestLoadShaders(t *testing.T) {
	assets := memAssets(map[string][]byte{
		core.CubeVertexShader:   make([]byte, 16),
		core.CubeFragmentShader: make([]byte, 8),
		"odd.frag.spv":          make([]byte, 7),
	})

	shaders, err := core.LoadShaders(assets, core.CubeVertexShader, core.CubeFragmentShader)
	require.NoError(t, err)
	assert.Len(t, shaders[core.VertexShaderType], 16)
	assert.Len(t, shaders[core.FragmentShaderType], 8)

	_, err = core.LoadShaders(assets, core.CubeVertexShader)
	assert.Error(t, err)

	_, err = core.LoadShaders(assets, core.CubeVertexShader, "odd.frag.spv")
	assert.Error(t, err)

	_, err = core.LoadShaders(assets, core.CubeVertexShader, "missing.frag.spv")
	assert.Error(t, err)
}

func TestOpenAssetsFromArchive(t *testing.T) {
	builder, err := kar.NewBuilder(kar.Header{Author: "test", Version: 1})
	require.NoError(t, err)
	defer builder.Close()
	require.NoError(t, builder.Add(core.CubeVertexShader, bytes.NewReader(make([]byte, 32))))
	require.NoError(t, builder.Add(core.CubeFragmentShader, bytes.NewReader(make([]byte, 64))))

	var buf bytes.Buffer
	_, err = builder.WriteTo(&buf)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "shaders.kar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	assets, closer, err := core.OpenAssets(path)
	require.NoError(t, err)
	defer closer()

	shaders, err := core.LoadShaders(assets, core.CubeVertexShader, core.CubeFragmentShader)
	require.NoError(t, err)
	assert.Len(t, shaders[core.FragmentShaderType], 64)
}

func TestOpenAssetsMissingArchive(t *testing.T) {
	_, _, err := core.OpenAssets(filepath.Join(t.TempDir(), "none.kar"))
	assert.Error(t, err)
}

func TestBundledAssets(t *testing.T) {
	assets, closer, err := core.OpenAssets("")
	require.NoError(t, err)
	assert.NoError(t, closer())

	source, err := assets.Find("cube.vert")
	require.NoError(t, err)
	assert.Contains(t, string(source), "#version 450")

	_, err = assets.Find("missing.frag.spv")
	assert.Error(t, err)
}
