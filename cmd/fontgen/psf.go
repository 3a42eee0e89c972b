package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	psf2Magic      = 0x864ab572
	psf2HasUnicode = 0x01
	psf2Separator  = 0xff
	psf2StartSeq   = 0xfe

	// Limits on header fields, checked before anything is allocated.
	psfMaxGlyphs        = 512
	psfMaxBytesPerGlyph = 64
	psfMaxWidth         = 32
	psfMaxHeight        = 64
)

type psfHeader struct {
	Magic         uint32
	Version       uint32
	HeaderSize    uint32
	Flags         uint32
	NumGlyphs     uint32
	BytesPerGlyph uint32
	Height        uint32
	Width         uint32
}

// psfFont is a PSF2 console font.
type psfFont struct {
	psfHeader
	glyphs []byte

	// Glyph index per code point. Nil without a unicode table, in which
	// case glyph i is code point i.
	runes map[rune]int
}

func readPSF(r io.Reader) (*psfFont, error) {
	var p psfFont
	if err := binary.Read(r, binary.LittleEndian, &p.psfHeader); err != nil {
		return nil, fmt.Errorf("unable to read font header: %w", err)
	}
	if p.Magic != psf2Magic {
		return nil, errors.New("file is not a psf2 font")
	}
	if p.HeaderSize < 32 || p.Width == 0 || p.Height == 0 {
		return nil, fmt.Errorf("bad psf2 header: %+v", p.psfHeader)
	}
	if p.NumGlyphs > psfMaxGlyphs || p.BytesPerGlyph > psfMaxBytesPerGlyph ||
		p.Width > psfMaxWidth || p.Height > psfMaxHeight {
		return nil, fmt.Errorf("psf2 font too large: %d glyphs of %dx%d in %d bytes",
			p.NumGlyphs, p.Width, p.Height, p.BytesPerGlyph)
	}
	if p.BytesPerGlyph < (p.Width+7)/8*p.Height {
		return nil, fmt.Errorf("%d bytes per glyph is too small for %dx%d", p.BytesPerGlyph, p.Width, p.Height)
	}

	if _, err := io.CopyN(io.Discard, r, int64(p.HeaderSize-32)); err != nil {
		return nil, err
	}
	p.glyphs = make([]byte, int(p.NumGlyphs)*int(p.BytesPerGlyph))
	if _, err := io.ReadFull(r, p.glyphs); err != nil {
		return nil, fmt.Errorf("unable to read glyphs: %w", err)
	}

	if p.Flags&psf2HasUnicode != 0 {
		table, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		p.runes = parseUnicodeTable(table, int(p.NumGlyphs))
	}
	return &p, nil
}

// parseUnicodeTable maps each single code point listed for a glyph to that
// glyph. Multi-rune sequences are skipped.
func parseUnicodeTable(b []byte, n int) map[rune]int {
	runes := make(map[rune]int)
	for i := 0; i < n && len(b) > 0; i++ {
		inSeq := false
		for len(b) > 0 && b[0] != psf2Separator {
			if b[0] == psf2StartSeq {
				inSeq = true
				b = b[1:]
				continue
			}
			r, size := utf8.DecodeRune(b)
			b = b[size:]
			if (r == utf8.RuneError && size <= 1) || inSeq {
				continue
			}
			if _, ok := runes[r]; !ok {
				runes[r] = i
			}
		}
		if len(b) > 0 {
			b = b[1:]
		}
	}
	return runes
}

// index returns the glyph index for r.
func (p *psfFont) index(r rune) (int, bool) {
	if p.runes != nil {
		i, ok := p.runes[r]
		return i, ok
	}
	if r >= 0 && int(r) < int(p.NumGlyphs) {
		return int(r), true
	}
	return 0, false
}

// Cell returns r's glyph as one byte per row, MSB leftmost, or false if the
// font has no glyph for it. Columns past the eighth are dropped.
func (p *psfFont) Cell(r rune) ([cellHeight]byte, bool) {
	var rows [cellHeight]byte
	i, ok := p.index(r)
	if !ok {
		return rows, false
	}

	rowBytes := int(p.Width+7) / 8
	g := p.glyphs[i*int(p.BytesPerGlyph):]
	for y := 0; y < int(p.Height) && y < cellHeight; y++ {
		rows[y] = g[y*rowBytes]
	}
	return rows, true
}
