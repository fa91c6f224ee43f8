package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"qfactor/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cli.NewRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "qfactor:", err)
		stop()
		os.Exit(1)
	}
}
