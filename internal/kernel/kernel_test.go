package kernel

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/superkooks/bootcon/internal/fb"
	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/pixel"
	"github.com/superkooks/bootcon/internal/qemu"
)

type recordingHalter struct {
	mu    sync.Mutex
	codes []qemu.ExitCode
}

func (h *recordingHalter) Halt(code qemu.ExitCode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes = append(h.codes, code)
}

func (h *recordingHalter) Codes() []qemu.ExitCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]qemu.ExitCode(nil), h.codes...)
}

func boot(t *testing.T, info BootInfo) (*Kernel, *strings.Builder, *recordingHalter, error) {
	t.Helper()

	var uart strings.Builder
	h := &recordingHalter{}
	k, err := Boot(info, Config{
		Serial:   &uart,
		LogLevel: zapcore.DebugLevel,
		Halter:   h,
	})
	return k, &uart, h, err
}

func TestBoot(t *testing.T) {
	k, uart, h, err := boot(t, BootInfo{Framebuffer: fb.NewMemory(640, 480, 0, pixel.RGB8, 4)})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	var want strings.Builder
	want.WriteString("[DEBUG] Logger initialized successfully\n")
	want.WriteString("[INFO] Framebuffer: 640x480, format: rgb\n")
	want.WriteString("[INFO] VGA initialized\n")
	want.WriteString("[INFO] Kernel started!\n")
	for _, msg := range StartupMessages {
		want.WriteString("[INFO] " + msg + "\n")
	}
	want.WriteString("[INFO] All startup messages completed\n")
	if uart.String() != want.String() {
		t.Errorf("serial output:\n%s\nwant:\n%s", uart.String(), want.String())
	}

	if !k.Console.Ready() {
		t.Fatalf("console not ready after boot")
	}
	// Records logged before the console was up are dropped from the screen.
	// After that: one log line, the logo, one log line, each startup message
	// printed and logged, and the completion line.
	lines := 1 + len(Logo) + 1 + 2*len(StartupMessages) + 1
	if row, col := k.Console.Cursor(); row != lines || col != 0 {
		t.Errorf("cursor = (%d,%d), want (%d,0)", row, col, lines)
	}

	if codes := h.Codes(); len(codes) != 0 {
		t.Errorf("healthy boot halted with %v", codes)
	}
	if _, halted := k.Halted(); halted {
		t.Errorf("Halted() after healthy boot")
	}
}

func TestBootWithoutFramebuffer(t *testing.T) {
	k, uart, h, err := boot(t, BootInfo{})
	if !errors.Is(err, kerr.ErrFrameBufferUnavailable) {
		t.Fatalf("Boot = %v", err)
	}

	if !strings.Contains(uart.String(), "[ERROR] [PANIC] frame buffer is not available: no framebuffer provided\n") {
		t.Errorf("panic not logged:\n%s", uart.String())
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
	if code, halted := k.Halted(); !halted || code != qemu.Failed {
		t.Errorf("Halted() = %v, %v", code, halted)
	}
}

func TestBootBadFramebuffer(t *testing.T) {
	d := fb.NewMemory(640, 480, 0, pixel.RGB8, 4)
	d.Buffer = d.Buffer[:100]

	k, uart, h, err := boot(t, BootInfo{Framebuffer: d})
	if !errors.Is(err, kerr.ErrFrameBufferUnavailable) {
		t.Fatalf("Boot = %v", err)
	}
	if k.Console.Ready() {
		t.Errorf("console ready after a failed init")
	}
	if !strings.Contains(uart.String(), "[ERROR] [PANIC] Failed to initialize VGA: ") {
		t.Errorf("panic not logged:\n%s", uart.String())
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
}

func TestBootWithoutSerial(t *testing.T) {
	h := &recordingHalter{}
	k, err := Boot(BootInfo{}, Config{Halter: h})
	if !errors.Is(err, kerr.ErrSerialInit) {
		t.Fatalf("Boot = %v", err)
	}
	if k.Logger != nil {
		t.Errorf("logger set without a serial port")
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
}

func TestRecover(t *testing.T) {
	k, uart, h, err := boot(t, BootInfo{Framebuffer: fb.NewMemory(320, 200, 0, pixel.BGR8, 3)})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer k.Recover()
		panic("boom")
	}()
	<-done

	if !strings.HasSuffix(uart.String(), "[ERROR] [PANIC] boom\n") {
		t.Errorf("serial tail = %q", uart.String())
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
}

func TestPanicAboveLogLevel(t *testing.T) {
	var uart strings.Builder
	h := &recordingHalter{}
	k, err := Boot(BootInfo{Framebuffer: fb.NewMemory(640, 480, 0, pixel.RGB8, 4)}, Config{
		Serial:   &uart,
		LogLevel: zapcore.FatalLevel,
		Halter:   h,
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if uart.Len() != 0 {
		t.Fatalf("records below fatal reached the serial port: %q", uart.String())
	}
	row, _ := k.Console.Cursor()

	k.Panic("disk on fire")

	if got := uart.String(); got != "[PANIC] disk on fire\n" {
		t.Errorf("serial output = %q", got)
	}
	if r, c := k.Console.Cursor(); r != row+1 || c != 0 {
		t.Errorf("cursor = (%d,%d), want (%d,0)", r, c, row+1)
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
}

func TestExitOnce(t *testing.T) {
	k, _, h, err := boot(t, BootInfo{Framebuffer: fb.NewMemory(320, 200, 0, pixel.RGB8, 0)})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	k.Exit(qemu.Success)
	k.Exit(qemu.Failed)
	k.Panic("late")

	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Success {
		t.Errorf("halt codes = %v", codes)
	}
	if code, _ := k.Halted(); code != qemu.Success {
		t.Errorf("Halted() code = %v", code)
	}
}

func TestRunTests(t *testing.T) {
	k, _, h, err := boot(t, BootInfo{Framebuffer: fb.NewMemory(640, 480, 0, pixel.RGB8, 4)})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	var ran []string
	ok := k.RunTests([]Test{
		{"trivial assertion", func() { ran = append(ran, "a") }},
		{"second", func() { ran = append(ran, "b") }},
	})
	if !ok || strings.Join(ran, "") != "ab" {
		t.Errorf("RunTests = %v, ran %v", ok, ran)
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Success {
		t.Errorf("halt codes = %v", codes)
	}
}

func TestRunTestsFailure(t *testing.T) {
	k, uart, h, err := boot(t, BootInfo{Framebuffer: fb.NewMemory(640, 480, 0, pixel.RGB8, 4)})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	var ran []string
	ok := k.RunTests([]Test{
		{"fails", func() { panic("assertion failed") }},
		{"skipped", func() { ran = append(ran, "skipped") }},
	})
	if ok || len(ran) != 0 {
		t.Errorf("RunTests = %v, ran %v", ok, ran)
	}
	if !strings.HasSuffix(uart.String(), "[failed] fails: assertion failed\n") {
		t.Errorf("serial tail = %q", uart.String())
	}
	if codes := h.Codes(); len(codes) != 1 || codes[0] != qemu.Failed {
		t.Errorf("halt codes = %v", codes)
	}
}
