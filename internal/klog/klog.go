// Package klog is the kernel logging facade. Every record is rendered as
// "[LEVEL] message" and written, best effort, to the serial port and to the
// framebuffer console.
package klog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/superkooks/bootcon/internal/kerr"
)

// ConsoleSink is the console's best-effort write path.
type ConsoleSink interface {
	WriteStringSafe(s string)
}

// SerialSink is the serial port's best-effort write path.
type SerialSink interface {
	WriteSafe(p []byte)
	Initialized() bool
}

// Options configures the kernel logger.
type Options struct {
	Level   zapcore.Level
	Console ConsoleSink
}

// ParseLevel accepts zap level names plus "trace", which maps to debug.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.EqualFold(s, "trace") || s == "" {
		return zapcore.DebugLevel, nil
	}
	return zapcore.ParseLevel(s)
}

// Init builds the kernel logger. The serial port must already be
// initialized; the console may still be waiting for its framebuffer, in
// which case its copy of each record is dropped.
func Init(port SerialSink, opts Options) (*zap.SugaredLogger, error) {
	if port == nil || !port.Initialized() {
		return nil, kerr.WrapCause(kerr.LoggerInitFailed, "serial port is not ready", kerr.ErrSerialInit)
	}

	logger := New(port, opts)
	logger.Debug("Logger initialized successfully")
	return logger, nil
}

// New builds the logger without checking the sinks.
func New(port SerialSink, opts Options) *zap.SugaredLogger {
	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(tee{port, opts.Console}), opts.Level)
	return zap.New(core).Sugar()
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      bracketLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// tee writes encoded records to both sinks and never fails, so a broken
// output can never turn logging into a fault.
type tee struct {
	serial  SerialSink
	console ConsoleSink
}

func (t tee) Write(p []byte) (int, error) {
	if t.serial != nil {
		t.serial.WriteSafe(p)
	}
	if t.console != nil {
		t.console.WriteStringSafe(string(p))
	}
	return len(p), nil
}
