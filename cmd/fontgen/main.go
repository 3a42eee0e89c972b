// Command fontgen writes the boot console glyph table.
//
// By default each 6x13 glyph of basicfont.Face7x13 is placed one column in
// and two rows down inside an 8x16 cell. With -psf the glyphs come from a
// PSF2 console font instead. The replacement character glyph fills the last
// slot and serves as the placeholder for unprintable bytes.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"image/color"
	"os"

	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"
)

const (
	cellWidth  = 8
	cellHeight = 16
	colOffset  = 1
	rowOffset  = 2
	first      = 0x20
	count      = 96
)

// cellSource yields 8x16 glyph cells by code point.
type cellSource interface {
	Cell(r rune) ([cellHeight]byte, bool)
}

var logger *zap.SugaredLogger

func main() {
	l, _ := zap.NewDevelopment()
	logger = l.Sugar()
	defer logger.Sync()

	out := flag.String("o", "table.go", "output file")
	psf := flag.String("psf", "", "PSF2 font to take glyphs from instead of basicfont")
	flag.Parse()

	var src cellSource = basicSource{}
	name := "golang.org/x/image/font/basicfont.Face7x13"
	if *psf != "" {
		f, err := os.Open(*psf)
		if err != nil {
			logger.Fatalw("unable to open font",
				"file", *psf,
				"err", err)
		}
		font, err := readPSF(f)
		f.Close()
		if err != nil {
			logger.Fatalw("unable to read font",
				"file", *psf,
				"err", err)
		}
		logger.Infow("loaded psf font",
			"glyphs", font.NumGlyphs,
			"width", font.Width,
			"height", font.Height,
			"unicode", font.runes != nil)
		src, name = font, *psf
	}

	b, err := generate(src, name)
	if err != nil {
		logger.Fatalw("unable to format generated table",
			"err", err)
	}

	if err := os.WriteFile(*out, b, 0o644); err != nil {
		logger.Fatalw("unable to write glyph table",
			"file", *out,
			"err", err)
	}

	logger.Infow("wrote glyph table",
		"file", *out,
		"glyphs", count)
}

// basicSource rasterizes basicfont.Face7x13 into cells.
type basicSource struct{}

func (basicSource) Cell(r rune) ([cellHeight]byte, bool) {
	var rows [cellHeight]byte

	var i int
	switch {
	case r >= first && r < first+count-1:
		i = int(r - first)
	case r == '\ufffd':
		i = count - 1
	default:
		return rows, false
	}

	face := basicfont.Face7x13
	h := face.Ascent + face.Descent
	for y := 0; y < h; y++ {
		for x := 0; x < face.Width; x++ {
			a := color.AlphaModel.Convert(face.Mask.At(x, i*h+y)).(color.Alpha).A
			if a >= 0x80 {
				rows[y+rowOffset] |= 0x80 >> uint(x+colOffset)
			}
		}
	}
	return rows, true
}

// cellName labels a table entry. Quoting is avoided so that gofmt has no
// quote pairs to rewrite.
func cellName(r rune) string {
	if r == ' ' {
		return "space"
	}
	return string(r)
}

func generate(src cellSource, name string) ([]byte, error) {
	face := basicfont.Face7x13
	if h := face.Ascent + face.Descent; face.Width+colOffset > cellWidth || h+rowOffset > cellHeight {
		return nil, fmt.Errorf("face %dx%d does not fit a %dx%d cell", face.Width, h, cellWidth, cellHeight)
	}

	w := new(bytes.Buffer)
	fmt.Fprintf(w, "// Code generated by fontgen from %s; DO NOT EDIT.\n\n", name)
	w.WriteString("package glyph\n\n")
	w.WriteString("// table holds the glyphs for code points 0x20 through 0x7e followed by the\n")
	w.WriteString("// placeholder glyph in slot 0x7f.\n")
	w.WriteString("var table = [Count]Glyph{\n")

	for i := 0; i < count; i++ {
		r := rune(first + i)
		if i == count-1 {
			r = '\ufffd'
		}

		rows, ok := src.Cell(r)
		if !ok {
			// Fonts without the glyph get basicfont's.
			rows, _ = basicSource{}.Cell(r)
		}

		if i < count-1 {
			fmt.Fprintf(w, "// %#x %s\n", r, cellName(r))
		} else {
			fmt.Fprintf(w, "// %#x placeholder\n", first+i)
		}

		w.WriteString("{")
		for k, b := range rows {
			if k > 0 {
				w.WriteString(", ")
			}
			fmt.Fprintf(w, "0x%02x", b)
		}
		w.WriteString("},\n")
	}
	w.WriteString("}\n")

	return format.Source(w.Bytes())
}
