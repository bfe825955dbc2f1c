// Command reviewer runs the AI-assisted pull request review orchestrator
// as a CI step.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/odd-ai/reviewers/internal/adapter/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
