// Command bootcon runs the boot console on the host or boots a disk image
// under QEMU.
//
//	bootcon serve [-config bootcon.json]
//	bootcon run [-config bootcon.json] [-image disk.img] [-qemu path]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/superkooks/bootcon/internal/hostsim"
	"github.com/superkooks/bootcon/internal/qemu"
)

var logger *zap.SugaredLogger

func main() {
	l, _ := zap.NewDevelopment()
	logger = l.Sugar()
	defer logger.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "serve":
		code = serve(os.Args[2:])
	case "run":
		code = run(os.Args[2:])
	default:
		usage()
		code = 2
	}
	logger.Sync()
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bootcon serve|run [flags]")
}

func loadConfig(path string) *hostsim.Config {
	cfg, err := hostsim.LoadConfig(path)
	if err != nil {
		logger.Fatalw("unable to load config",
			"location", path,
			"err", err)
	}
	return cfg
}

// exitStatus maps a guest exit code to this process's status.
func exitStatus(code qemu.ExitCode) int {
	if code == qemu.Success {
		return 0
	}
	return 1
}

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	path := fs.String("config", hostsim.DefaultConfigLocation, "config file, created with defaults if missing")
	fs.Parse(args)

	cfg := loadConfig(*path)
	sim, err := hostsim.Boot(cfg, os.Stdout, logger)
	if sim == nil {
		logger.Fatalw("unable to start simulator",
			"err", err)
	} else if err != nil {
		logger.Errorw("kernel failed to boot",
			"err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: hostsim.NewServer(sim.Kernel, sim.Hub, logger),
	}
	go func() {
		logger.Infow("serving console",
			"addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("unable to serve",
				"addr", cfg.Listen,
				"err", err)
			stop()
		}
	}()

	status := 0
	select {
	case <-ctx.Done():
		logger.Info("interrupted, shutting down")
	case <-sim.Latch.Done():
		code, _ := sim.Latch.Code()
		logger.Infow("kernel halted",
			"code", code)
		status = exitStatus(code)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("unclean shutdown",
			"err", err)
	}
	return status
}

func run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	path := fs.String("config", hostsim.DefaultConfigLocation, "config file, created with defaults if missing")
	image := fs.String("image", "", "raw disk image, overrides qemu.image")
	bin := fs.String("qemu", "", "emulator binary, overrides qemu.path")
	fs.Parse(args)

	cfg := loadConfig(*path)
	l := cfg.Launcher()
	if *image != "" {
		l.Image = *image
	}
	if *bin != "" {
		l.Binary = *bin
	}
	l.Extra = fs.Args()
	l.Stdout = os.Stdout
	l.Stderr = os.Stderr
	l.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := l.Run(ctx)
	if err != nil {
		logger.Errorw("qemu did not report an exit code",
			"err", err)
		return 1
	}
	return exitStatus(code)
}
