// Package frame holds the canonical W×H RGB pixel grid and the diff
// machinery that decides what actually goes over the wire.
package frame

import (
	"bytes"
	"image"
	"image/color"
)

// RGB is one 8-bit-per-channel pixel value.
type RGB struct {
	R, G, B uint8
}

// Frame is a dense W×H grid of RGB values, three bytes per pixel in
// row-major order.
type Frame struct {
	W, H int
	Pix  []uint8
}

// New allocates a black frame.
func New(w, h int) *Frame {
	return &Frame{W: w, H: h, Pix: make([]uint8, w*h*3)}
}

// Fill paints every pixel with c.
func (f *Frame) Fill(c RGB) {
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
	}
}

// Set writes one pixel. Out-of-bounds coordinates are ignored.
func (f *Frame) Set(x, y int, c RGB) {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return
	}
	i := (y*f.W + x) * 3
	f.Pix[i] = c.R
	f.Pix[i+1] = c.G
	f.Pix[i+2] = c.B
}

// At reads one pixel. Out-of-bounds coordinates read as black.
func (f *Frame) At(x, y int) RGB {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return RGB{}
	}
	i := (y*f.W + x) * 3
	return RGB{f.Pix[i], f.Pix[i+1], f.Pix[i+2]}
}

// Blend composites src over the pixel at (x, y) with straight alpha.
// Alpha 255 overwrites, alpha 0 is a no-op.
func (f *Frame) Blend(x, y int, src RGB, alpha uint8) {
	if alpha == 0 {
		return
	}
	if alpha == 255 {
		f.Set(x, y, src)
		return
	}
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return
	}
	dst := f.At(x, y)
	a := uint16(alpha)
	inv := uint16(255 - alpha)
	f.Set(x, y, RGB{
		R: uint8((uint16(src.R)*a + uint16(dst.R)*inv) / 255),
		G: uint8((uint16(src.G)*a + uint16(dst.G)*inv) / 255),
		B: uint8((uint16(src.B)*a + uint16(dst.B)*inv) / 255),
	})
}

// Clone returns an independent copy.
func (f *Frame) Clone() *Frame {
	c := &Frame{W: f.W, H: f.H, Pix: make([]uint8, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// Equal reports pixel-exact equality of two frames.
func (f *Frame) Equal(o *Frame) bool {
	if o == nil || f.W != o.W || f.H != o.H {
		return false
	}
	return bytes.Equal(f.Pix, o.Pix)
}

// ToImage converts the frame to an opaque *image.RGBA.
func (f *Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.W, f.H))
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			c := f.At(x, y)
			img.SetRGBA(x, y, color.RGBA{c.R, c.G, c.B, 255})
		}
	}
	return img
}

// FromImage converts an *image.RGBA into a frame, dropping alpha.
func FromImage(img *image.RGBA) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			f.Set(x, y, RGB{c.R, c.G, c.B})
		}
	}
	return f
}
