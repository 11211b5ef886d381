// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"unsafe"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
)

// CubeVertexCount is the amount of vertices drawn for one cube,
// two triangles for each of the six faces.
const CubeVertexCount = 12 * 3

// Vertex is a textured model vertex
type Vertex struct {
	Pos glm.Vec4
	UV  glm.Vec2
}

// VertexSize is the size of one Vertex in bytes
const VertexSize = int(unsafe.Sizeof(Vertex{}))

func v(x, y, z, s, t float32) Vertex {
	return Vertex{Pos: glm.Vec4{x, y, z, 1}, UV: glm.Vec2{s, t}}
}

var cube = [CubeVertexCount]Vertex{
	// left
	v(-1, -1, -1, 1, 0), v(-1, 1, 1, 0, 1), v(-1, -1, 1, 0, 0),
	v(-1, 1, 1, 0, 1), v(-1, -1, -1, 1, 0), v(-1, 1, -1, 1, 1),
	// front
	v(-1, -1, -1, 0, 0), v(1, -1, -1, 1, 0), v(1, 1, -1, 1, 1),
	v(-1, -1, -1, 0, 0), v(1, 1, -1, 1, 1), v(-1, 1, -1, 0, 1),
	// top
	v(-1, -1, -1, 0, 1), v(1, -1, 1, 1, 0), v(1, -1, -1, 1, 1),
	v(-1, -1, -1, 0, 1), v(-1, -1, 1, 0, 0), v(1, -1, 1, 1, 0),
	// bottom
	v(-1, 1, -1, 0, 0), v(1, 1, 1, 1, 1), v(-1, 1, 1, 0, 1),
	v(-1, 1, -1, 0, 0), v(1, 1, -1, 1, 0), v(1, 1, 1, 1, 1),
	// right
	v(1, 1, -1, 0, 1), v(1, -1, 1, 1, 0), v(1, 1, 1, 1, 1),
	v(1, -1, 1, 1, 0), v(1, 1, -1, 0, 1), v(1, -1, -1, 0, 0),
	// back
	v(-1, 1, 1, 1, 1), v(1, 1, 1, 0, 1), v(-1, -1, 1, 1, 0),
	v(-1, -1, 1, 1, 0), v(1, 1, 1, 0, 1), v(1, -1, 1, 0, 0),
}

// Cube returns the vertices of a textured cube spanning -1..1 on every axis.
// The returned slice is a copy and may be modified.
func Cube() []Vertex {
	out := make([]Vertex, CubeVertexCount)
	copy(out, cube[:])
	return out
}

// VertexBytes returns the raw memory of the vertices, ready
// to be copied into a vertex buffer.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	out := make([]byte, len(vertices)*VertexSize)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(out)))
	return out
}

// VertexBindingDescriptions return Vulkan Vertex descriptors
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(VertexSize),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan attribute descriptors
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
		},
	}
}
