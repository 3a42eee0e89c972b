package pixel

// MaxBytesPerPixel bounds the pixel size of every supported framebuffer.
const MaxBytesPerPixel = 4

// Encoder writes c into dst using a fixed layout. dst must hold the
// encoder's pixel size.
type Encoder func(dst []byte, c Color)

// NewEncoder selects the layout for f once, so callers never branch on the
// format per pixel. bpp is clamped to [1, MaxBytesPerPixel].
//
// Unknown formats degrade instead of failing: RGB order when the pixel has
// room for three channels, luma in every byte otherwise.
func NewEncoder(f Format, bpp int) Encoder {
	if bpp < 1 {
		bpp = 1
	} else if bpp > MaxBytesPerPixel {
		bpp = MaxBytesPerPixel
	}

	switch {
	case f == RGB8 && bpp >= 3, f == Unknown && bpp >= 3:
		return func(dst []byte, c Color) {
			dst[0] = c.R
			dst[1] = c.G
			dst[2] = c.B
			clear(dst[3:bpp])
		}
	case f == BGR8 && bpp >= 3:
		return func(dst []byte, c Color) {
			dst[0] = c.B
			dst[1] = c.G
			dst[2] = c.R
			clear(dst[3:bpp])
		}
	default:
		return func(dst []byte, c Color) {
			l := c.Luma()
			for i := 0; i < bpp; i++ {
				dst[i] = l
			}
		}
	}
}

// Encode returns c laid out as f in a new bpp-byte slice.
func Encode(c Color, f Format, bpp int) []byte {
	if bpp < 1 {
		bpp = 1
	} else if bpp > MaxBytesPerPixel {
		bpp = MaxBytesPerPixel
	}
	dst := make([]byte, bpp)
	NewEncoder(f, bpp)(dst, c)
	return dst
}

// Decode is the inverse of the encoder for f. Grayscale pixels decode to a
// gray color; src shorter than three bytes is treated as grayscale.
func Decode(src []byte, f Format) Color {
	if len(src) == 0 {
		return Black
	}
	if len(src) < 3 || f == U8Grayscale {
		return Color{src[0], src[0], src[0]}
	}
	if f == BGR8 {
		return Color{R: src[2], G: src[1], B: src[0]}
	}
	return Color{R: src[0], G: src[1], B: src[2]}
}
