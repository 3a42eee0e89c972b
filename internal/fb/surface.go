// Package fb wraps a linear framebuffer handed over by the bootloader.
package fb

import (
	"fmt"
	"image"

	"go.uber.org/multierr"

	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/pixel"
)

// Descriptor describes framebuffer memory the surface does not own.
type Descriptor struct {
	Buffer []byte

	// Dimensions in pixels
	Width  uint32
	Height uint32

	// Bytes per scanline, including any padding
	Stride uint32

	Format pixel.Format

	// Zero means derive from Format.
	BytesPerPixel uint32
}

// Surface is a bounds-checked view over a framebuffer. It is not safe for
// concurrent use; the console serializes access.
type Surface struct {
	buf    []byte
	width  uint32
	height uint32
	stride uint32
	bpp    uint32
	format pixel.Format
	encode pixel.Encoder
}

// Initialize validates d and returns a surface over its buffer. Every
// failure is kerr.FrameBufferUnavailable.
func Initialize(d *Descriptor) (*Surface, error) {
	if d == nil {
		return nil, kerr.Wrap(kerr.FrameBufferUnavailable, "no framebuffer descriptor")
	}

	bpp := d.BytesPerPixel
	if bpp == 0 {
		bpp = uint32(d.Format.DefaultBytesPerPixel())
	}

	var errs error
	if d.Width == 0 || d.Height == 0 {
		errs = multierr.Append(errs, fmt.Errorf("empty geometry %dx%d", d.Width, d.Height))
	}
	if bpp < uint32(d.Format.MinBytesPerPixel()) || bpp > pixel.MaxBytesPerPixel {
		errs = multierr.Append(errs, fmt.Errorf("%d bytes per pixel is invalid for format %v", bpp, d.Format))
	}
	if uint64(d.Stride) < uint64(d.Width)*uint64(bpp) {
		errs = multierr.Append(errs, fmt.Errorf("stride %d is shorter than a %d pixel row", d.Stride, d.Width))
	}
	if errs == nil {
		need := uint64(d.Height-1)*uint64(d.Stride) + uint64(d.Width)*uint64(bpp)
		if uint64(len(d.Buffer)) < need {
			errs = multierr.Append(errs, fmt.Errorf("buffer holds %d bytes, geometry needs %d", len(d.Buffer), need))
		}
	}
	if errs != nil {
		return nil, kerr.WrapCause(kerr.FrameBufferUnavailable, "invalid framebuffer descriptor", errs)
	}

	return &Surface{
		buf:    d.Buffer,
		width:  d.Width,
		height: d.Height,
		stride: d.Stride,
		bpp:    bpp,
		format: d.Format,
		encode: pixel.NewEncoder(d.Format, int(bpp)),
	}, nil
}

// Width returns the width in pixels.
func (s *Surface) Width() uint32 { return s.width }

// Height returns the height in pixels.
func (s *Surface) Height() uint32 { return s.height }

// BytesPerPixel returns the pixel size in bytes.
func (s *Surface) BytesPerPixel() uint32 { return s.bpp }

// Format returns the pixel format.
func (s *Surface) Format() pixel.Format { return s.format }

// Encode lays c out in the surface's pixel format.
func (s *Surface) Encode(c pixel.Color) []byte {
	return pixel.Encode(c, s.format, int(s.bpp))
}

func (s *Surface) offset(x, y uint32) int {
	return int(y)*int(s.stride) + int(x)*int(s.bpp)
}

// SetPixel sets a single pixel. Coordinates outside the surface are ignored.
func (s *Surface) SetPixel(x, y uint32, c pixel.Color) {
	if x >= s.width || y >= s.height {
		return
	}
	off := s.offset(x, y)
	s.encode(s.buf[off:off+int(s.bpp)], c)
}

// PutPixel copies a pixel produced by Encode. Coordinates outside the
// surface are ignored.
func (s *Surface) PutPixel(x, y uint32, p []byte) {
	if x >= s.width || y >= s.height {
		return
	}
	off := s.offset(x, y)
	copy(s.buf[off:off+int(s.bpp)], p)
}

// At reads back the pixel at (x, y).
func (s *Surface) At(x, y uint32) (pixel.Color, bool) {
	if x >= s.width || y >= s.height {
		return pixel.Color{}, false
	}
	off := s.offset(x, y)
	return pixel.Decode(s.buf[off:off+int(s.bpp)], s.format), true
}

// FillRect fills a rectangle clipped to the surface.
func (s *Surface) FillRect(x, y, width, height uint32, c pixel.Color) {
	if x >= s.width || y >= s.height {
		return
	}
	if width > s.width-x {
		width = s.width - x
	}
	if height > s.height-y {
		height = s.height - y
	}

	p := s.Encode(c)
	for py := y; py < y+height; py++ {
		for px := x; px < x+width; px++ {
			off := s.offset(px, py)
			copy(s.buf[off:off+int(s.bpp)], p)
		}
	}
}

// Clear fills every pixel with c.
func (s *Surface) Clear(c pixel.Color) {
	s.FillRect(0, 0, s.width, s.height, c)
}

// ScrollUp moves the contents up by lines scanlines and fills the exposed
// bottom scanlines with c.
func (s *Surface) ScrollUp(lines uint32, c pixel.Color) {
	if lines >= s.height {
		s.Clear(c)
		return
	}

	rowBytes := int(s.width * s.bpp)
	for y := uint32(0); y < s.height-lines; y++ {
		dst := s.offset(0, y)
		src := s.offset(0, y+lines)
		copy(s.buf[dst:dst+rowBytes], s.buf[src:src+rowBytes])
	}
	s.FillRect(0, s.height-lines, s.width, lines, c)
}

// Snapshot decodes the visible area into a new RGBA image.
func (s *Surface) Snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(s.width), int(s.height)))
	for y := uint32(0); y < s.height; y++ {
		for x := uint32(0); x < s.width; x++ {
			off := s.offset(x, y)
			c := pixel.Decode(s.buf[off:off+int(s.bpp)], s.format)
			i := img.PixOffset(int(x), int(y))
			img.Pix[i] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = 0xFF
		}
	}
	return img
}
