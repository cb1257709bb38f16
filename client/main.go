// Command client runs only the dashboard, against ADMIN_API_BASE_URL.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/dashboard"
	"github.com/phillip-england/cardsuite/internal/envutil"
	"github.com/phillip-england/cardsuite/internal/logging"
)

func main() {
	if err := envutil.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(envutil.Or("LOG_LEVEL", "info"), envutil.Or("LOG_FORMAT", "console"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := dashboard.Run(ctx, dashboard.DefaultConfigFromEnv(), logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
}
