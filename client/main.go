package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phillip-england/hrsuite/internal/clientapp"
	"github.com/phillip-england/hrsuite/internal/config"
	"github.com/phillip-england/hrsuite/internal/envutil"
	"github.com/phillip-england/hrsuite/internal/logging"
)

func main() {
	if err := envutil.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := clientapp.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
