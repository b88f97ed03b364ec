package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := NewRootCmd().ExecuteContext(ctx)
	// PersistentPostRun is skipped when a command fails
	closeComponents()
	stop()

	if err != nil {
		os.Exit(1)
	}
}
