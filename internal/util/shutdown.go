package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WaitForShutdown blocks until SIGINT/SIGTERM arrives and then calls fn with
// a context that expires after grace.
func WaitForShutdown(grace time.Duration, fn func(ctx context.Context)) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	signal.Stop(ch)

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	fn(ctx)
}
