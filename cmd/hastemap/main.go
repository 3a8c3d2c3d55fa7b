package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.SetOutput(os.Stderr)
		log.Error(fmt.Sprintf("Error: %v", err))
		stop()
		os.Exit(1)
	}
}
