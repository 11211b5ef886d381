// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"image"
	"image/color"
	"unsafe"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

// check turns a failed vulkan result into an error naming the call
func check(call string, result vk.Result) error {
	if err := vk.Error(result); err != nil {
		return errors.Wrapf(err, "vk.%s()", call)
	}
	return nil
}

// GetPixels draws the image onto a tightly packed RGBA canvas
// anchored at the origin and returns its pixels.
func GetPixels(img image.Image) []uint8 {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	return canvas.Pix
}

// CheckerImage returns a size by size image of cells by cells
// alternating squares, scaled up from a one pixel per cell pattern.
func CheckerImage(size, cells int) *image.RGBA {
	if cells < 1 {
		cells = 1
	}
	light := color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	dark := color.RGBA{R: 0x30, G: 0x60, B: 0xa0, A: 0xff}

	pattern := image.NewRGBA(image.Rect(0, 0, cells, cells))
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			if (x+y)%2 == 0 {
				pattern.SetRGBA(x, y, light)
			} else {
				pattern.SetRGBA(x, y, dark)
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(out, out.Bounds(), pattern, pattern.Bounds(), draw.Src, nil)
	return out
}
