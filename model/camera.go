// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// Camera is a look-at camera with a perspective projection
type Camera struct {
	Eye    glm.Vec3
	Center glm.Vec3
	Up     glm.Vec3

	// Fov is the vertical field of view in degrees
	Fov  float32
	Near float32
	Far  float32
}

// DefaultCamera looks down the -Z axis from slightly above the origin
func DefaultCamera() Camera {
	return Camera{
		Eye:    glm.Vec3{0, 2, 10},
		Center: glm.Vec3{0, 0, -100},
		Up:     glm.Vec3{0, 1, 0},
		Fov:    45,
		Near:   0.1,
		Far:    10000,
	}
}

// View returns the view matrix
func (c Camera) View() glm.Mat4 {
	return glm.LookAtV(c.Eye, c.Center, c.Up)
}

// VulkanClip flips Y and maps depth from [-1, 1] to [0, 1].
var VulkanClip = glm.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Projection returns the projection matrix for the given aspect ratio,
// already in Vulkan clip space.
func (c Camera) Projection(aspect float32) glm.Mat4 {
	return VulkanClip.Mul4(glm.Perspective(glm.DegToRad(c.Fov), aspect, c.Near, c.Far))
}

// Uniform returns a uniform with the camera matrices filled in
func (c Camera) Uniform(model glm.Mat4, aspect float32) Uniform {
	return Uniform{
		Model:      model,
		View:       c.View(),
		Projection: c.Projection(aspect),
	}
}
