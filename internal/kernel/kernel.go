// Package kernel wires the serial port, logger and framebuffer console into
// the boot sequence, and owns the panic path.
package kernel

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/superkooks/bootcon/internal/console"
	"github.com/superkooks/bootcon/internal/fb"
	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/klog"
	"github.com/superkooks/bootcon/internal/qemu"
	"github.com/superkooks/bootcon/internal/serial"
)

var metricBootTime = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "bootcon_kernel_boot_seconds",
	Help:    "Time from Boot to the last startup message",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
})

// BootInfo is what the bootloader hands the kernel.
type BootInfo struct {
	// Nil when the bootloader found no linear framebuffer.
	Framebuffer *fb.Descriptor
}

// Halter stops the machine. On hardware Halt does not return; hosted
// kernels return and stay halted.
type Halter interface {
	Halt(code qemu.ExitCode)
}

// Config holds the pieces of the machine that differ between hardware and a
// hosted run.
type Config struct {
	// Serial is the UART the port writes to.
	Serial     io.Writer
	SerialBase uint16

	LogLevel zapcore.Level
	Console  []console.Option
	Halter   Halter
}

// Kernel is a booted kernel. Logger is nil if boot failed before the
// logger came up.
type Kernel struct {
	Console *console.Console
	Serial  *serial.Port
	Logger  *zap.SugaredLogger

	halter Halter
	// zero while running, haltedBit|code once halted
	state atomic.Uint64
}

const haltedBit = 1 << 32

// Boot brings the kernel up. Any failure is routed through Panic, so the
// returned kernel is halted whenever err is non-nil.
func Boot(info BootInfo, cfg Config) (*Kernel, error) {
	start := time.Now()
	base := cfg.SerialBase
	if base == 0 {
		base = DefaultSerialBase
	}

	k := &Kernel{
		Console: console.New(cfg.Console...),
		Serial:  serial.New(base),
		halter:  cfg.Halter,
	}

	if err := k.Serial.Init(cfg.Serial); err != nil {
		k.Panic(fmt.Sprintf("Failed to initialize logger: %v", err))
		return k, err
	}
	logger, err := klog.Init(k.Serial, klog.Options{Level: cfg.LogLevel, Console: k.Console})
	if err != nil {
		k.Panic(fmt.Sprintf("Failed to initialize logger: %v", err))
		return k, err
	}
	k.Logger = logger

	d := info.Framebuffer
	if d == nil {
		err := kerr.Wrap(kerr.FrameBufferUnavailable, "no framebuffer provided")
		k.Panic(err)
		return k, err
	}
	k.Logger.Infof("Framebuffer: %dx%d, format: %v", d.Width, d.Height, d.Format)

	if err := k.Console.Init(d); err != nil {
		k.Panic(fmt.Sprintf("Failed to initialize VGA: %v", err))
		return k, err
	}
	k.Logger.Info("VGA initialized")

	if err := k.printLogo(); err != nil {
		k.Panic(err)
		return k, err
	}
	k.Logger.Info("Kernel started!")

	for _, msg := range StartupMessages {
		if err := k.Console.Printf("%s\n", msg); err != nil {
			k.Panic(err)
			return k, err
		}
		k.Logger.Info(msg)
	}
	k.Logger.Info("All startup messages completed")
	metricBootTime.Observe(time.Since(start).Seconds())
	return k, nil
}

func (k *Kernel) printLogo() error {
	for _, line := range Logo {
		if _, err := k.Console.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Panic reports v through the best-effort paths and halts with Failed. It
// never blocks on the console or serial locks, so it is safe to call while
// either is held. The message is written even when the log level filters
// out errors.
func (k *Kernel) Panic(v any) {
	if k.Logger != nil && k.Logger.Desugar().Core().Enabled(zapcore.ErrorLevel) {
		k.Logger.Errorf("[PANIC] %v", v)
	} else {
		k.Serial.PrintSafe("[PANIC] %v\n", v)
		k.Console.PrintSafe("[PANIC] %v\n", v)
	}
	k.Exit(qemu.Failed)
}

// Recover turns a panic in the calling goroutine into Panic. Use it as
// `defer k.Recover()`.
func (k *Kernel) Recover() {
	if r := recover(); r != nil {
		k.Panic(r)
	}
}

// Exit writes code to the exit device and halts. Only the first call has an
// effect.
func (k *Kernel) Exit(code qemu.ExitCode) {
	if !k.state.CompareAndSwap(0, haltedBit|uint64(code)) {
		return
	}
	if k.halter != nil {
		k.halter.Halt(code)
	}
}

// Halted reports whether the kernel has halted, and with which code.
func (k *Kernel) Halted() (qemu.ExitCode, bool) {
	s := k.state.Load()
	if s == 0 {
		return 0, false
	}
	return qemu.ExitCode(uint32(s)), true
}
