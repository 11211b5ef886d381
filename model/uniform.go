// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// UniformSize is the size of Uniform in bytes, as laid out in GPU memory
const UniformSize = int(unsafe.Sizeof(Uniform{}))

// Bytes returns the raw memory of the uniform
func (u Uniform) Bytes() []byte {
	out := make([]byte, UniformSize)
	copy(out, (*[UniformSize]byte)(unsafe.Pointer(&u))[:])
	return out
}

// MVP returns the combined projection * view * model matrix
func (u Uniform) MVP() glm.Mat4 {
	return u.Projection.Mul4(u.View).Mul4(u.Model)
}

// UniformFromBytes reads back a Uniform written by Bytes
func UniformFromBytes(b []byte) (Uniform, error) {
	var u Uniform
	if len(b) < UniformSize {
		return u, errors.Errorf("model: uniform needs %d bytes, got %d", UniformSize, len(b))
	}
	copy((*[UniformSize]byte)(unsafe.Pointer(&u))[:], b)
	return u, nil
}
