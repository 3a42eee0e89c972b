package qemu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"
)

// DefaultBinary is the emulator looked up on PATH when none is configured.
const DefaultBinary = "qemu-system-x86_64"

// ErrNoExitCode is returned when QEMU stops without the guest writing to the
// exit device.
var ErrNoExitCode = errors.New("qemu exited without an exit device code")

// Launcher boots a raw disk image under QEMU with the serial port on stdio
// and the exit device attached.
type Launcher struct {
	Binary string
	Image  string
	Extra  []string

	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.SugaredLogger
}

// Args returns the emulator arguments.
func (l *Launcher) Args() []string {
	args := []string{
		"-drive", "format=raw,file=" + l.Image,
		"-serial", "stdio",
		"-device", fmt.Sprintf("isa-debug-exit,iobase=%#x,iosize=0x04", Port),
	}
	return append(args, l.Extra...)
}

// Run starts QEMU and waits for it. Cancelling ctx kills the emulator. The
// returned code is whatever the guest wrote to the exit device; err is nil
// whenever such a code was observed, even if it is Failed.
func (l *Launcher) Run(ctx context.Context) (ExitCode, error) {
	if l.Image == "" {
		return 0, errors.New("no disk image configured")
	}
	bin := l.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	cmd := newCommand(ctx, bin, l.Args()...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	log := l.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Infow("starting qemu",
		"binary", bin,
		"image", l.Image)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", bin, err)
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, ErrNoExitCode
	case errors.As(err, &exitErr):
		code, ok := StatusFromExit(exitErr.ExitCode())
		if !ok {
			return 0, fmt.Errorf("%w: status %d", ErrNoExitCode, exitErr.ExitCode())
		}
		log.Infow("qemu exited",
			"code", code)
		return code, nil
	default:
		return 0, err
	}
}

// command is exec.Cmd bound to a context: cancelling the context kills the
// child, and Wait reaps it so no defunct process is left behind.
type command struct {
	ctx  context.Context
	done chan struct{}
	*exec.Cmd
}

func newCommand(ctx context.Context, name string, args ...string) *command {
	return &command{ctx, make(chan struct{}), exec.Command(name, args...)}
}

func (c *command) Start() error {
	err := c.Cmd.Start()
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-c.ctx.Done():
			c.Cmd.Process.Kill()
		case <-c.done:
		}
	}()
	return nil
}

func (c *command) Wait() error {
	defer close(c.done)
	return c.Cmd.Wait()
}
