package fb

import "github.com/superkooks/bootcon/internal/pixel"

// NewMemory allocates a descriptor backed by ordinary memory. stride 0 means
// tightly packed rows. It is used where no bootloader supplies the buffer:
// the host simulator and tests.
func NewMemory(width, height, stride uint32, format pixel.Format, bpp uint32) *Descriptor {
	if bpp == 0 {
		bpp = uint32(format.DefaultBytesPerPixel())
	}
	if stride == 0 {
		stride = width * bpp
	}

	return &Descriptor{
		Buffer:        make([]byte, int(stride)*int(height)),
		Width:         width,
		Height:        height,
		Stride:        stride,
		Format:        format,
		BytesPerPixel: bpp,
	}
}
