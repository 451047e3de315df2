package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.DialRPC).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
