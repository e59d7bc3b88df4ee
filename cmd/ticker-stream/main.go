package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/app"
	"tickerstream.com/internal/quotes/config"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/xerr"
)

func main() {
	os.Exit(run())
}

func run() int {
	// SIGINT/SIGTERM 取消 ctx，app 把它转成 Stop(0)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ticker-stream: %v\n", err)
		return xerr.CodeOf(err)
	}

	logger.InitWithFile(config.Service, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "init failed", zap.Error(err))
		return xerr.CodeOf(err)
	}
	return a.Run(ctx)
}
