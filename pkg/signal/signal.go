// Package signal ties process interrupts to context cancellation so a running
// transfer stops at its next chunk instead of being killed mid-write.
package signal

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/go-artifactdelivery/pkg/utils"
)

// Signals that cancel the root context
var Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WithCancelOnInterrupt returns a context cancelled on the first SIGINT or
// SIGTERM. A second signal is left to the default handler. Calling cancel
// also releases the signal registration.
func WithCancelOnInterrupt(parent context.Context, logger *utils.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	ossignal.Notify(ch, Signals...)

	go func() {
		select {
		case sig := <-ch:
			logger.Info("Received %v, cancelling", sig)
			ossignal.Stop(ch)
			cancel()
		case <-ctx.Done():
			ossignal.Stop(ch)
		}
	}()

	return ctx, cancel
}
