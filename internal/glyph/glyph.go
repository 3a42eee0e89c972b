// Package glyph holds the fixed 8x16 bitmap font used by the boot console.
package glyph

//go:generate go run ../../cmd/fontgen -o table.go

const (
	// Width of each glyph in pixels.
	Width = 8
	// Height of each glyph in pixels.
	Height = 16

	// First is the first code point in the table.
	First = 32
	// Last is one past the last printable code point.
	Last = 127
	// Count is the number of glyphs, including the placeholder.
	Count = 96
	// FallbackIndex is the table slot of the placeholder glyph.
	FallbackIndex = Count - 1
)

// Glyph is one bitmap. Each byte is a row, bit 7 is the leftmost pixel.
type Glyph [Height]byte

// Set reports whether the pixel at (x, y) is foreground.
func (g Glyph) Set(x, y int) bool {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return false
	}
	return g[y]&(0x80>>uint(x)) != 0
}

// Printable reports whether b has its own glyph.
func Printable(b byte) bool {
	return b >= First && b < Last
}

// For returns the glyph for b. Bytes outside [First, Last) get the
// placeholder glyph, so every byte resolves.
func For(b byte) Glyph {
	if !Printable(b) {
		return table[FallbackIndex]
	}
	return table[b-First]
}

// Fallback returns the placeholder glyph.
func Fallback() Glyph {
	return table[FallbackIndex]
}
