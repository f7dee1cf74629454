package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fitledger/internal/cli"
)

func main() {
	// Commands observe interruption through their context. Backfill uses it as
	// the per-user checkpoint: a user already started runs to completion.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
