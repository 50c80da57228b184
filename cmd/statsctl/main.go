// Package main is the entry point for statsctl.
//
// Import Path: statsidx.io/statsidx/cmd/statsctl
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"statsidx.io/statsidx/internal/cli"
	"statsidx.io/statsidx/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
