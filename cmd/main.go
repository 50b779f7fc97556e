package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/aggsync/internal/app"
	"github.com/yungbote/aggsync/internal/observability"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, application.Log, application.OtelConfig())
	defer func() { _ = shutdownOTel(context.Background()) }()

	if err := application.Serve(ctx); err != nil {
		application.Log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	application.Log.Info("server stopped")
}
