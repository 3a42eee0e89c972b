package fb

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/pixel"
)

func TestInitializeRejects(t *testing.T) {
	tests := []struct {
		name   string
		d      *Descriptor
		errors int
	}{
		{"nil", nil, 0},
		{"zero width", &Descriptor{Buffer: make([]byte, 64), Height: 4, Stride: 16, Format: pixel.RGB8}, 1},
		{"zero height", &Descriptor{Buffer: make([]byte, 64), Width: 4, Stride: 16, Format: pixel.RGB8}, 1},
		{"short stride", &Descriptor{Buffer: make([]byte, 64), Width: 4, Height: 4, Stride: 8, Format: pixel.RGB8}, 1},
		{"rgb in one byte", &Descriptor{Buffer: make([]byte, 64), Width: 4, Height: 4, Stride: 16, Format: pixel.RGB8, BytesPerPixel: 1}, 1},
		{"five bytes", &Descriptor{Buffer: make([]byte, 128), Width: 4, Height: 4, Stride: 20, Format: pixel.Unknown, BytesPerPixel: 5}, 1},
		{"short buffer", &Descriptor{Buffer: make([]byte, 10), Width: 4, Height: 4, Stride: 12, Format: pixel.RGB8}, 1},
		{"several problems", &Descriptor{Width: 0, Height: 4, Stride: 0, Format: pixel.BGR8, BytesPerPixel: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Initialize(tt.d)
			if s != nil {
				t.Fatalf("Initialize returned a surface")
			}
			if !errors.Is(err, kerr.ErrFrameBufferUnavailable) {
				t.Fatalf("Initialize error = %v, want FrameBufferUnavailable", err)
			}
			if tt.errors > 0 {
				if n := len(multierr.Errors(errors.Unwrap(err))); n != tt.errors {
					t.Errorf("got %d problems, want %d: %v", n, tt.errors, err)
				}
			}
		})
	}
}

func TestInitializeDerivesBytesPerPixel(t *testing.T) {
	d := &Descriptor{Buffer: make([]byte, 4*4), Width: 4, Height: 4, Stride: 4, Format: pixel.U8Grayscale}
	s, err := Initialize(d)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.BytesPerPixel() != 1 {
		t.Errorf("BytesPerPixel() = %d, want 1", s.BytesPerPixel())
	}
}

func TestEncodeMatchesSetPixel(t *testing.T) {
	d := NewMemory(2, 2, 0, pixel.BGR8, 3)
	s, err := Initialize(d)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c := pixel.Hex(0x123456)
	s.SetPixel(1, 0, c)
	if got, want := s.Encode(c), d.Buffer[3:6]; !bytes.Equal(got, want) {
		t.Errorf("Encode = % x, framebuffer holds % x", got, want)
	}
	if got := s.Encode(c); !bytes.Equal(got, []byte{0x56, 0x34, 0x12}) {
		t.Errorf("Encode = % x", got)
	}
}

func TestSetPixelReadBack(t *testing.T) {
	for _, f := range []pixel.Format{pixel.RGB8, pixel.BGR8, pixel.Unknown} {
		s, err := Initialize(NewMemory(7, 5, 32, f, 4))
		if err != nil {
			t.Fatalf("%v: Initialize: %v", f, err)
		}

		c := pixel.Hex(0x10A0F0)
		for y := uint32(0); y < 5; y++ {
			for x := uint32(0); x < 7; x++ {
				s.SetPixel(x, y, c)
				got, ok := s.At(x, y)
				if !ok || got != c {
					t.Fatalf("%v: At(%d,%d) = %v, %v; want %v", f, x, y, got, ok, c)
				}
			}
		}
	}
}

func TestSetPixelOutOfBoundsIsNoop(t *testing.T) {
	d := NewMemory(4, 3, 16, pixel.RGB8, 4)
	s, err := Initialize(d)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	before := bytes.Clone(d.Buffer)
	for _, p := range [][2]uint32{{4, 0}, {0, 3}, {100, 100}, {^uint32(0), 0}, {0, ^uint32(0)}} {
		s.SetPixel(p[0], p[1], pixel.White)
		s.PutPixel(p[0], p[1], []byte{1, 2, 3, 4})
		if _, ok := s.At(p[0], p[1]); ok {
			t.Errorf("At(%d,%d) reported in bounds", p[0], p[1])
		}
	}
	if !bytes.Equal(before, d.Buffer) {
		t.Errorf("out of bounds writes modified the buffer")
	}
}

func TestStridePaddingUntouched(t *testing.T) {
	d := NewMemory(2, 2, 10, pixel.BGR8, 3)
	s, err := Initialize(d)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s.Clear(pixel.White)
	for y := 0; y < 2; y++ {
		row := d.Buffer[y*10 : y*10+10]
		if !bytes.Equal(row[:6], bytes.Repeat([]byte{0xFF}, 6)) {
			t.Errorf("row %d pixels = % x", y, row[:6])
		}
		if !bytes.Equal(row[6:], make([]byte, 4)) {
			t.Errorf("row %d padding = % x", y, row[6:])
		}
	}
}

func TestFillRectClips(t *testing.T) {
	s, err := Initialize(NewMemory(4, 4, 0, pixel.U8Grayscale, 1))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s.FillRect(2, 2, 10, 10, pixel.White)
	for y := uint32(0); y < 4; y++ {
		for x := uint32(0); x < 4; x++ {
			got, _ := s.At(x, y)
			want := x >= 2 && y >= 2
			if (got == pixel.White) != want {
				t.Errorf("pixel (%d,%d) = %v", x, y, got)
			}
		}
	}
}

func TestScrollUp(t *testing.T) {
	s, err := Initialize(NewMemory(2, 4, 0, pixel.RGB8, 3))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	for y := uint32(0); y < 4; y++ {
		s.FillRect(0, y, 2, 1, pixel.Color{R: uint8(y + 1)})
	}
	s.ScrollUp(1, pixel.Black)

	for y := uint32(0); y < 3; y++ {
		got, _ := s.At(1, y)
		if got.R != uint8(y+2) {
			t.Errorf("row %d red = %d, want %d", y, got.R, y+2)
		}
	}
	if got, _ := s.At(0, 3); got != pixel.Black {
		t.Errorf("exposed row = %v, want black", got)
	}

	s.ScrollUp(10, pixel.White)
	if got, _ := s.At(0, 0); got != pixel.White {
		t.Errorf("scrolling past the height did not clear")
	}
}

func TestSnapshot(t *testing.T) {
	s, err := Initialize(NewMemory(3, 2, 0, pixel.BGR8, 4))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.SetPixel(2, 1, pixel.Hex(0x112233))

	img := s.Snapshot()
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Fatalf("snapshot bounds = %v", img.Bounds())
	}
	got := img.RGBAAt(2, 1)
	if got.R != 0x11 || got.G != 0x22 || got.B != 0x33 || got.A != 0xFF {
		t.Errorf("snapshot pixel = %v", got)
	}
}
