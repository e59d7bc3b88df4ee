// ticker-tail 订阅 ticker-stream 扇出到 NATS 的 ticker，逐条打日志。用来在线上核对下游收到的数据。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/config"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/gateway"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/xerr"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ticker-tail: %v\n", err)
		return xerr.CodeOf(err)
	}
	logger.InitWithFile(config.Service+"-tail", cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	b, err := gateway.NewNatsBroker(cfg.Nats.URL, nats.Name(config.Service+"-tail"))
	if err != nil {
		logger.Error(ctx, "connect nats failed", zap.String("url", cfg.Nats.URL), zap.Error(err))
		return xerr.ExitConfig
	}
	defer b.Close()

	symbols := plan.ParseSymbols(strings.ToUpper(cfg.Symbols))
	logger.Info(ctx, "tailing tickers", zap.Strings("symbols", symbols), zap.String("nats", cfg.Nats.URL))

	err = gateway.Subscribe(ctx, b, symbols, func(t model.Ticker) {
		logger.Info(ctx, "ticker",
			zap.String("symbol", t.Symbol),
			zap.String("close", t.Close.String()),
			zap.String("change_pct", t.Change().StringFixed(2)),
			zap.Int64("event_time", t.EventTime),
		)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "subscribe failed", zap.Error(err))
		return xerr.ExitFatal
	}
	return xerr.ExitOK
}
