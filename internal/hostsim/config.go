// Package hostsim runs the kernel against an in-memory framebuffer and
// serves the screen, cursor and serial output over HTTP.
package hostsim

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"go.uber.org/multierr"

	"github.com/superkooks/bootcon/internal/console"
	"github.com/superkooks/bootcon/internal/fb"
	"github.com/superkooks/bootcon/internal/pixel"
	"github.com/superkooks/bootcon/internal/qemu"
)

// DefaultConfigLocation is where the CLI looks for its config.
const DefaultConfigLocation = "bootcon.json"

// Config is the host side configuration.
type Config struct {
	Width         uint32
	Height        uint32
	Stride        uint32
	Format        pixel.Format
	BytesPerPixel uint32

	Scroll     console.ScrollPolicy
	Foreground pixel.Color
	Background pixel.Color

	Listen   string
	LogLevel string

	QEMUPath  string
	QEMUImage string
}

// DefaultConfig is a 640x480 32-bit RGB screen served on :9001.
func DefaultConfig() *Config {
	return &Config{
		Width:         640,
		Height:        480,
		Format:        pixel.RGB8,
		BytesPerPixel: 4,
		Scroll:        console.ScrollClear,
		Foreground:    pixel.Hex(console.DefaultForeground),
		Background:    pixel.Hex(console.DefaultBackground),
		Listen:        ":9001",
		LogLevel:      "debug",
		QEMUPath:      qemu.DefaultBinary,
	}
}

// LoadConfig reads the config at path. A missing file is created with the
// defaults. Keys absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Save(path)
	} else if err != nil {
		return nil, err
	}

	doc, err := gabs.ParseJSONFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.apply(doc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig applies a JSON document over the defaults.
func ParseConfig(b []byte) (*Config, error) {
	doc, err := gabs.ParseJSON(b)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := cfg.apply(doc); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(doc *gabs.Container) error {
	var errs error
	num := func(path string, dst *uint32) {
		if !doc.ExistsP(path) {
			return
		}
		v, err := number(doc.Path(path).Data())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			return
		}
		*dst = v
	}
	str := func(path string, set func(string) error) {
		if !doc.ExistsP(path) {
			return
		}
		s, ok := doc.Path(path).Data().(string)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected a string", path))
			return
		}
		if err := set(s); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	color := func(path string, dst *pixel.Color) {
		if !doc.ExistsP(path) {
			return
		}
		col, err := parseColor(doc.Path(path).Data())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			return
		}
		*dst = col
	}

	num("framebuffer.width", &c.Width)
	num("framebuffer.height", &c.Height)
	num("framebuffer.stride", &c.Stride)
	num("framebuffer.bytesPerPixel", &c.BytesPerPixel)
	str("framebuffer.format", func(s string) (err error) {
		c.Format, err = pixel.ParseFormat(s)
		return err
	})

	str("console.scroll", func(s string) (err error) {
		c.Scroll, err = console.ParseScrollPolicy(s)
		return err
	})
	color("console.foreground", &c.Foreground)
	color("console.background", &c.Background)

	str("listen", func(s string) error { c.Listen = s; return nil })
	str("logLevel", func(s string) error { c.LogLevel = s; return nil })
	str("qemu.path", func(s string) error { c.QEMUPath = s; return nil })
	str("qemu.image", func(s string) error { c.QEMUImage = s; return nil })
	return errs
}

// JSON encodes the config in the layout LoadConfig reads.
func (c *Config) JSON() *gabs.Container {
	doc := gabs.New()
	doc.SetP(c.Width, "framebuffer.width")
	doc.SetP(c.Height, "framebuffer.height")
	doc.SetP(c.Stride, "framebuffer.stride")
	doc.SetP(c.Format.String(), "framebuffer.format")
	doc.SetP(c.BytesPerPixel, "framebuffer.bytesPerPixel")
	doc.SetP(c.Scroll.String(), "console.scroll")
	doc.SetP(fmt.Sprintf("#%06x", c.Foreground.Uint32()), "console.foreground")
	doc.SetP(fmt.Sprintf("#%06x", c.Background.Uint32()), "console.background")
	doc.SetP(c.Listen, "listen")
	doc.SetP(c.LogLevel, "logLevel")
	doc.SetP(c.QEMUPath, "qemu.path")
	doc.SetP(c.QEMUImage, "qemu.image")
	return doc
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	return os.WriteFile(path, []byte(c.JSON().StringIndent("", "  ")+"\n"), 0o644)
}

// Descriptor allocates the framebuffer the config describes.
func (c *Config) Descriptor() *fb.Descriptor {
	return fb.NewMemory(c.Width, c.Height, c.Stride, c.Format, c.BytesPerPixel)
}

// ConsoleOptions returns the console options the config describes.
func (c *Config) ConsoleOptions() []console.Option {
	return []console.Option{
		console.WithColors(c.Foreground, c.Background),
		console.WithScrollPolicy(c.Scroll),
	}
}

// Launcher returns a QEMU launcher for the configured image.
func (c *Config) Launcher() *qemu.Launcher {
	return &qemu.Launcher{Binary: c.QEMUPath, Image: c.QEMUImage}
}

func number(v any) (uint32, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	if f < 0 || f > 1<<32-1 || f != float64(uint32(f)) {
		return 0, fmt.Errorf("%v is not a valid unsigned integer", f)
	}
	return uint32(f), nil
}

// parseColor accepts 0xRRGGBB as a JSON number or a "#rrggbb" / "0xrrggbb"
// string.
func parseColor(v any) (pixel.Color, error) {
	switch v := v.(type) {
	case float64:
		n, err := number(v)
		if err != nil {
			return pixel.Color{}, err
		}
		return pixel.Hex(n), nil
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(v), "#"), "0x")
		n, err := strconv.ParseUint(s, 16, 24)
		if err != nil {
			return pixel.Color{}, fmt.Errorf("invalid color %q", v)
		}
		return pixel.Hex(uint32(n)), nil
	}
	return pixel.Color{}, fmt.Errorf("invalid color %v", v)
}
