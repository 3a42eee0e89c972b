package hostsim

import (
	"io"

	"go.uber.org/zap"

	"github.com/superkooks/bootcon/internal/kernel"
	"github.com/superkooks/bootcon/internal/klog"
	"github.com/superkooks/bootcon/internal/qemu"
	"github.com/superkooks/bootcon/internal/serial"
)

// Simulator is a kernel booted on the host.
type Simulator struct {
	Kernel *kernel.Kernel
	Hub    *serial.Hub

	// Latch receives the kernel's exit device writes.
	Latch *qemu.Latch
}

// Boot boots a kernel against the framebuffer cfg describes. Serial output
// goes to the hub and, if mirror is non-nil, to mirror as well.
func Boot(cfg *Config, mirror io.Writer, logger *zap.SugaredLogger) (*Simulator, error) {
	level, err := klog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	sim := &Simulator{
		Hub:   serial.NewHub(),
		Latch: qemu.NewLatch(),
	}
	var uart io.Writer = sim.Hub
	if mirror != nil {
		uart = io.MultiWriter(sim.Hub, mirror)
	}

	logger.Infow("booting hosted kernel",
		"width", cfg.Width,
		"height", cfg.Height,
		"format", cfg.Format,
		"scroll", cfg.Scroll)

	k, err := kernel.Boot(kernel.BootInfo{Framebuffer: cfg.Descriptor()}, kernel.Config{
		Serial:   uart,
		LogLevel: level,
		Console:  cfg.ConsoleOptions(),
		Halter:   qemu.NewExitDevice(sim.Latch),
	})
	sim.Kernel = k
	return sim, err
}
