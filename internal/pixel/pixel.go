// Package pixel converts canonical colors into the byte layout a bootloader
// reports for its framebuffer.
package pixel

import (
	"fmt"
	"strings"
)

// Color is a 24-bit RGB value.
type Color struct {
	R, G, B uint8
}

// Predefined colors
var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// Hex creates a color from a hex value (0xRRGGBB). Bits above 24 are ignored.
func Hex(hex uint32) Color {
	return Color{
		R: uint8((hex >> 16) & 0xFF),
		G: uint8((hex >> 8) & 0xFF),
		B: uint8(hex & 0xFF),
	}
}

// Uint32 returns the color as 0x00RRGGBB.
func (c Color) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Luma is the Rec.601 integer luminance of c.
func (c Color) Luma() uint8 {
	return uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000)
}

// Format is the pixel layout reported by the bootloader.
type Format uint8

const (
	RGB8 Format = iota
	BGR8
	U8Grayscale
	Unknown
)

func (f Format) String() string {
	switch f {
	case RGB8:
		return "rgb"
	case BGR8:
		return "bgr"
	case U8Grayscale:
		return "u8"
	default:
		return "unknown"
	}
}

// ParseFormat parses the names produced by Format.String. Names are case
// insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "rgb", "rgb8":
		return RGB8, nil
	case "bgr", "bgr8":
		return BGR8, nil
	case "u8", "gray", "grayscale":
		return U8Grayscale, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown pixel format %q", s)
}

// MinBytesPerPixel is the smallest pixel size the format can be stored in.
func (f Format) MinBytesPerPixel() int {
	switch f {
	case RGB8, BGR8:
		return 3
	default:
		return 1
	}
}

// DefaultBytesPerPixel is used when a descriptor does not report a size.
func (f Format) DefaultBytesPerPixel() int {
	switch f {
	case RGB8, BGR8:
		return 3
	case U8Grayscale:
		return 1
	default:
		return 4
	}
}
