package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paycore/internal/app/server"
	"paycore/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, config.Load()); err != nil {
		fmt.Fprintln(os.Stderr, "paycore:", err)
		stop()
		os.Exit(1)
	}
}
