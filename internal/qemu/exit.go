// Package qemu covers both ends of QEMU's isa-debug-exit device: the guest
// writes an exit code to an I/O port, and the host decodes it from the
// emulator's exit status.
package qemu

import (
	"fmt"
	"sync"
)

// ExitCode is the value the guest writes to the exit device.
type ExitCode uint32

const (
	Success ExitCode = 0x10
	Failed  ExitCode = 0x11
)

// Port is the I/O base the exit device is mapped at.
const Port uint16 = 0xf4

func (c ExitCode) String() string {
	switch c {
	case Success:
		return "success"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("exit(%#x)", uint32(c))
}

// StatusFromExit decodes the host exit status of a QEMU process that was
// stopped by the exit device, which reports (code << 1) | 1. ok is false for
// statuses the device cannot produce.
func StatusFromExit(status int) (code ExitCode, ok bool) {
	if status <= 0 || status&1 == 0 {
		return 0, false
	}
	return ExitCode(status >> 1), true
}

// PortWriter performs a 32-bit write to an I/O port.
type PortWriter interface {
	WritePort(port uint16, value uint32)
}

// ExitDevice is the guest side of isa-debug-exit.
type ExitDevice struct {
	w    PortWriter
	port uint16
}

// NewExitDevice returns a device that writes to Port through w.
func NewExitDevice(w PortWriter) *ExitDevice {
	return &ExitDevice{w: w, port: Port}
}

// Exit writes code to the device. Under QEMU the write does not return.
func (d *ExitDevice) Exit(code ExitCode) {
	d.w.WritePort(d.port, uint32(code))
}

// Halt is Exit under the name the kernel's halt path uses.
func (d *ExitDevice) Halt(code ExitCode) {
	d.Exit(code)
}

// Latch is a PortWriter for hosted kernels. It records the first exit code
// written to Port and ignores everything else.
type Latch struct {
	once sync.Once
	done chan struct{}
	code ExitCode
}

// NewLatch returns an open latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// WritePort implements PortWriter.
func (l *Latch) WritePort(port uint16, value uint32) {
	if port != Port {
		return
	}
	l.once.Do(func() {
		l.code = ExitCode(value)
		close(l.done)
	})
}

// Done is closed once an exit code has been written.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Code returns the latched exit code, or false if none was written yet.
func (l *Latch) Code() (ExitCode, bool) {
	select {
	case <-l.done:
		return l.code, true
	default:
		return 0, false
	}
}
