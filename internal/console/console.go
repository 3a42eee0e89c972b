// Package console implements the boot text console: a cursor over a grid of
// 8x16 character cells drawn straight into the bootloader framebuffer.
//
// A Console starts Uninitialized and becomes Ready exactly once through
// Init. Write and Printf report errors to the caller. WriteSafe and
// PrintSafe are for the logger and the panic handler: they never block on
// the console lock, never return an error and never panic.
package console

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/text/encoding/charmap"

	"github.com/superkooks/bootcon/internal/fb"
	"github.com/superkooks/bootcon/internal/glyph"
	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/pixel"
)

// ScrollPolicy decides what happens when the cursor moves past the last row.
type ScrollPolicy uint8

const (
	// ScrollClear clears the whole screen and restarts at row 0.
	ScrollClear ScrollPolicy = iota
	// ScrollShift moves every text line up by one and continues on the last
	// row.
	ScrollShift
)

func (p ScrollPolicy) String() string {
	if p == ScrollShift {
		return "shift"
	}
	return "clear"
}

// ParseScrollPolicy parses "clear" or "shift".
func ParseScrollPolicy(s string) (ScrollPolicy, error) {
	switch s {
	case "clear", "":
		return ScrollClear, nil
	case "shift":
		return ScrollShift, nil
	}
	return ScrollClear, fmt.Errorf("unknown scroll policy %q", s)
}

const (
	// DefaultForeground is white.
	DefaultForeground uint32 = 0x00FFFFFF
	// DefaultBackground is black.
	DefaultBackground uint32 = 0x00000000
	// DefaultTabWidth is the distance between tab stops, in cells.
	DefaultTabWidth = 8

	// lineBufferSize bounds the output of a single Printf.
	lineBufferSize = 512

	// sub replaces runes that have no code page 437 byte.
	sub = 0x1A
)

// Option configures a Console before Init.
type Option func(*Console)

// WithColors sets the foreground and background colors.
func WithColors(fg, bg pixel.Color) Option {
	return func(c *Console) {
		c.fg, c.bg = fg, bg
	}
}

// WithScrollPolicy selects the scroll policy. The default is ScrollClear.
func WithScrollPolicy(p ScrollPolicy) Option {
	return func(c *Console) {
		c.policy = p
	}
}

// WithTabWidth sets the tab stop distance. Values below 1 are ignored.
func WithTabWidth(n int) Option {
	return func(c *Console) {
		if n > 0 {
			c.tabWidth = n
		}
	}
}

// Console is safe for concurrent use.
type Console struct {
	mu sync.Mutex

	ready   bool
	surface *fb.Surface

	fg, bg       pixel.Color
	fgPix, bgPix []byte

	// Dimensions in characters
	cols, rows int
	// Cursor position in characters
	row, col int

	policy   ScrollPolicy
	tabWidth int
	scrolls  int
}

// New returns an Uninitialized console.
func New(opts ...Option) *Console {
	c := &Console{
		fg:       pixel.Hex(DefaultForeground),
		bg:       pixel.Hex(DefaultBackground),
		policy:   ScrollClear,
		tabWidth: DefaultTabWidth,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Init binds the console to the framebuffer described by d and clears it.
// It succeeds at most once: later calls return kerr.ErrHardware and leave
// the console untouched. A descriptor that cannot be used returns
// kerr.ErrFrameBufferUnavailable and the console stays Uninitialized.
func (c *Console) Init(d *fb.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return kerr.Wrap(kerr.HardwareError, "console already initialized")
	}

	s, err := fb.Initialize(d)
	if err != nil {
		return err
	}

	cols := int(s.Width() / glyph.Width)
	rows := int(s.Height() / glyph.Height)
	if cols == 0 || rows == 0 {
		return kerr.Wrap(kerr.FrameBufferUnavailable, "framebuffer is smaller than one character cell")
	}

	c.surface = s
	c.cols, c.rows = cols, rows
	c.row, c.col = 0, 0
	c.fgPix = s.Encode(c.fg)
	c.bgPix = s.Encode(c.bg)
	s.Clear(c.bg)
	c.ready = true

	return nil
}

// Ready reports whether Init has succeeded.
func (c *Console) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Size returns the grid dimensions in characters.
func (c *Console) Size() (cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols, c.rows
}

// Cursor returns the current cell.
func (c *Console) Cursor() (row, col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row, c.col
}

// Scrolls returns how many times the console has scrolled.
func (c *Console) Scrolls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrolls
}

// Framebuffer returns the pixel layout of the surface. It reports Unknown
// and zero before Init.
func (c *Console) Framebuffer() (pixel.Format, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return pixel.Unknown, 0
	}
	return c.surface.Format(), int(c.surface.BytesPerPixel())
}

// Policy returns the scroll policy.
func (c *Console) Policy() ScrollPolicy {
	return c.policy
}

// Write implements io.Writer. It fails with kerr.ErrFrameBufferUnavailable
// before Init.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return 0, kerr.ErrFrameBufferUnavailable
	}

	c.render(p)
	return len(p), nil
}

// WriteString writes s one code page 437 byte per rune. Runes without a
// code page 437 byte are written as SUB and show the placeholder glyph.
func (c *Console) WriteString(s string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return 0, kerr.ErrFrameBufferUnavailable
	}

	c.renderString(s)
	return len(s), nil
}

// Printf formats into a fixed line buffer and writes the result. Output
// that does not fit is cut at the buffer size; the prefix is still written
// and kerr.ErrWriteFailed is returned.
func (c *Console) Printf(format string, args ...any) error {
	var line lineBuffer
	_, ferr := fmt.Fprintf(&line, format, args...)

	if _, err := c.Write(line.Bytes()); err != nil {
		return err
	}
	if ferr != nil {
		return kerr.WrapCause(kerr.WriteFailed, "formatted output", ferr)
	}
	return nil
}

// WriteSafe writes p if the console is Ready and its lock is free. Anything
// else drops the write.
func (c *Console) WriteSafe(p []byte) {
	if !c.mu.TryLock() {
		metricDroppedWrites.WithLabelValues(dropBusy).Inc()
		return
	}
	defer c.mu.Unlock()
	defer c.recoverRender()

	if !c.ready {
		metricDroppedWrites.WithLabelValues(dropUninitialized).Inc()
		return
	}
	c.render(p)
}

// WriteStringSafe is WriteSafe with WriteString's transcoding.
func (c *Console) WriteStringSafe(s string) {
	if !c.mu.TryLock() {
		metricDroppedWrites.WithLabelValues(dropBusy).Inc()
		return
	}
	defer c.mu.Unlock()
	defer c.recoverRender()

	if !c.ready {
		metricDroppedWrites.WithLabelValues(dropUninitialized).Inc()
		return
	}
	c.renderString(s)
}

// PrintSafe is the best-effort Printf.
func (c *Console) PrintSafe(format string, args ...any) {
	var line lineBuffer
	if _, err := fmt.Fprintf(&line, format, args...); err != nil {
		metricDroppedWrites.WithLabelValues(dropTruncated).Inc()
	}
	c.WriteSafe(line.Bytes())
}

func (c *Console) recoverRender() {
	if r := recover(); r != nil {
		metricDroppedWrites.WithLabelValues(dropPanic).Inc()
	}
}

// Clear fills the screen with the background color and homes the cursor.
func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return kerr.ErrFrameBufferUnavailable
	}
	c.surface.Clear(c.bg)
	c.row, c.col = 0, 0
	return nil
}

// Snapshot returns a decoded copy of the screen, or nil before Init.
func (c *Console) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return nil
	}
	return c.surface.Snapshot()
}

func (c *Console) renderString(s string) {
	for _, r := range s {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = sub
		}
		c.put(b)
	}
	metricBytesWritten.Add(float64(len(s)))
}

func (c *Console) render(p []byte) {
	for _, b := range p {
		c.put(b)
	}
	metricBytesWritten.Add(float64(len(p)))
}

func (c *Console) put(b byte) {
	switch b {
	case '\n':
		c.col = 0
		c.row++
		c.scrollIfNeeded()
	case '\r':
		c.col = 0
	case '\t':
		for {
			c.draw(glyph.For(' '))
			c.advance()
			if c.col%c.tabWidth == 0 {
				break
			}
		}
	default:
		c.draw(glyph.For(b))
		c.advance()
	}
}

func (c *Console) advance() {
	c.col++
	if c.col == c.cols {
		c.col = 0
		c.row++
	}
	c.scrollIfNeeded()
}

func (c *Console) scrollIfNeeded() {
	if c.row < c.rows {
		return
	}

	switch c.policy {
	case ScrollShift:
		c.surface.ScrollUp(glyph.Height, c.bg)
		c.row = c.rows - 1
	default:
		c.surface.Clear(c.bg)
		c.row = 0
	}

	c.scrolls++
	metricScrolls.Inc()
}

// draw blits g into the cursor cell.
func (c *Console) draw(g glyph.Glyph) {
	x0 := uint32(c.col * glyph.Width)
	y0 := uint32(c.row * glyph.Height)

	for y := 0; y < glyph.Height; y++ {
		bits := g[y]
		for x := 0; x < glyph.Width; x++ {
			p := c.bgPix
			if bits&(0x80>>uint(x)) != 0 {
				p = c.fgPix
			}
			c.surface.PutPixel(x0+uint32(x), y0+uint32(y), p)
		}
	}

	metricGlyphsRendered.Inc()
}

// lineBuffer is a fixed-size io.Writer used for formatting without growing
// the heap.
type lineBuffer struct {
	buf [lineBufferSize]byte
	n   int
}

func (l *lineBuffer) Write(p []byte) (int, error) {
	n := copy(l.buf[l.n:], p)
	l.n += n
	if n < len(p) {
		return n, errLineFull
	}
	return n, nil
}

func (l *lineBuffer) Bytes() []byte {
	return l.buf[:l.n]
}

var errLineFull = fmt.Errorf("line exceeds %d bytes", lineBufferSize)
