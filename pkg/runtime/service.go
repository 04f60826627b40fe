package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// RunWithSignals runs fn with a context that is cancelled on SIGINT/SIGTERM.
func RunWithSignals(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx)
}
