// Package grace runs a long-lived process until it returns or an OS signal
// arrives, then runs its shutdown callback under a timeout.
package grace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/vormadev/rstatic/kit/colorlog"
)

func defaultSignals() []os.Signal {
	if runtime.GOOS == "windows" {
		return []os.Signal{os.Interrupt}
	}
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

type OrchestrateOptions struct {
	ShutdownTimeout time.Duration // Default: 10 seconds
	Signals         []os.Signal   // Default: SIGHUP, SIGINT, SIGTERM, SIGQUIT
	Logger          *slog.Logger  // Default: colorlog labelled "grace"

	// StartupCallback runs the application. Its context is cancelled when a
	// signal arrives; it should return once the context is done. Returning
	// earlier ends the process lifecycle.
	StartupCallback func(ctx context.Context) error

	// ShutdownCallback runs after StartupCallback returns. Its context
	// expires after ShutdownTimeout.
	ShutdownCallback func(ctx context.Context) error
}

// Orchestrate runs StartupCallback until it returns or a signal arrives, then
// runs ShutdownCallback. It returns the startup error, if any, joined with the
// shutdown error. A cancellation caused by a signal is not an error.
func Orchestrate(parent context.Context, options OrchestrateOptions) error {
	if options.Logger == nil {
		options.Logger = colorlog.New("grace")
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	if len(options.Signals) == 0 {
		options.Signals = defaultSignals()
	}
	log := options.Logger

	ctx, stop := context.WithCancel(parent)
	defer stop()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, options.Signals...)
	defer signal.Stop(sig)

	go func() {
		select {
		case s := <-sig:
			log.Info("[shutdown] Signal received, initiating graceful shutdown", "signal", s)
			stop()
		case <-ctx.Done():
		}
	}()

	var startErr error
	if options.StartupCallback != nil {
		startErr = options.StartupCallback(ctx)
		if errors.Is(startErr, context.Canceled) && ctx.Err() != nil {
			startErr = nil
		}
		if startErr != nil {
			log.Error("[startup] Error", "error", startErr)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), options.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if options.ShutdownCallback != nil {
		if shutdownErr = options.ShutdownCallback(shutdownCtx); shutdownErr != nil {
			log.Error("[shutdown] Cleanup error", "error", shutdownErr)
		}
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		log.Warn("[shutdown] Graceful shutdown timed out")
	}
	return errors.Join(startErr, shutdownErr)
}
