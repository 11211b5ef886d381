// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strings"

	"github.com/pkg/errors"
)

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

const shaderSuffix = ".spv"

// ShaderTypeOf tells the shader type from its file name. It is important
// that the name does not contain more than two dots, the first part is
// always the name of the shader, second is type, and the last ensures
// that the shader is compiled (only compiled shaders have an .spv extension).
func ShaderTypeOf(name string) ShaderType {
	if !strings.HasSuffix(name, shaderSuffix) {
		return UnknownShaderType
	}
	nodes := strings.Split(strings.TrimSuffix(name, shaderSuffix), ".")
	if len(nodes) != 2 {
		return UnknownShaderType
	}
	switch nodes[1] {
	case "vert":
		return VertexShaderType
	case "frag":
		return FragmentShaderType
	default:
		return UnknownShaderType
	}
}

// Shaders holds compiled SPIR-V code by shader type
type Shaders map[ShaderType][]byte

// LoadShaders reads the named compiled shaders from the assets.
// Both a vertex and a fragment shader must be among them.
func LoadShaders(assets Assets, names ...string) (Shaders, error) {
	shaders := make(Shaders)
	for _, name := range names {
		typ := ShaderTypeOf(name)
		if typ == UnknownShaderType {
			return nil, errors.Errorf("shader %s: not a compiled vertex or fragment shader", name)
		}
		data, err := assets.Find(name)
		if err != nil {
			return nil, errors.Wrapf(err, "shader %s", name)
		}
		if len(data) == 0 || len(data)%4 != 0 {
			return nil, errors.Errorf("shader %s: SPIR-V size %d is not a multiple of 4", name, len(data))
		}
		shaders[typ] = data
	}
	if _, ok := shaders[VertexShaderType]; !ok {
		return nil, errors.New("no vertex shader")
	}
	if _, ok := shaders[FragmentShaderType]; !ok {
		return nil, errors.New("no fragment shader")
	}
	return shaders, nil
}
