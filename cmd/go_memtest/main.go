package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_memtest/internal/commands/cli"
)

// main builds the command tree and runs it under a signal-aware context.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd, err := cli.NewRootCommand()
	if err != nil {
		log.Error().Err(err).Msg("failed to build command tree")
		os.Exit(1)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
