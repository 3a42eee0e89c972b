// Package kerr defines the error kinds shared by the boot console and its
// collaborators.
package kerr

import (
	"errors"
	"fmt"
)

// Kind is a kernel error kind. The zero value is Unknown.
type Kind uint8

const (
	Unknown Kind = iota
	VgaInitFailed
	SerialInitFailed
	LoggerInitFailed
	FrameBufferUnavailable
	WriteFailed
	OutOfMemory
	InvalidParameter
	Timeout
	HardwareError
)

var messages = [...]string{
	Unknown:                "unknown error",
	VgaInitFailed:          "VGA initialization failed",
	SerialInitFailed:       "serial port initialization failed",
	LoggerInitFailed:       "logger initialization failed",
	FrameBufferUnavailable: "frame buffer is not available",
	WriteFailed:            "write operation failed",
	OutOfMemory:            "out of memory",
	InvalidParameter:       "invalid parameter",
	Timeout:                "operation timed out",
	HardwareError:          "hardware error",
}

// Error implements the error interface, so a Kind can be used directly as a
// sentinel.
func (k Kind) Error() string {
	if int(k) < len(messages) {
		return messages[k]
	}
	return messages[Unknown]
}

// Sentinels for the kinds that the console layer returns.
var (
	ErrFrameBufferUnavailable error = FrameBufferUnavailable
	ErrWriteFailed            error = WriteFailed
	ErrHardware               error = HardwareError
	ErrSerialInit             error = SerialInitFailed
	ErrLoggerInit             error = LoggerInitFailed
)

type wrapped struct {
	kind  Kind
	msg   string
	cause error
}

func (w *wrapped) Error() string {
	if w.cause != nil {
		return fmt.Sprintf("%s: %s: %v", w.kind, w.msg, w.cause)
	}
	return fmt.Sprintf("%s: %s", w.kind, w.msg)
}

func (w *wrapped) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}

func (w *wrapped) Unwrap() error { return w.cause }

// Wrap annotates kind with a message. errors.Is(err, kind) keeps working.
func Wrap(kind Kind, msg string) error {
	return &wrapped{kind: kind, msg: msg}
}

// WrapCause is Wrap with an underlying cause that stays reachable through
// errors.Unwrap.
func WrapCause(kind Kind, msg string, cause error) error {
	return &wrapped{kind: kind, msg: msg, cause: cause}
}

// KindOf reports the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	var w *wrapped
	if errors.As(err, &w) {
		return w.kind
	}

	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}
