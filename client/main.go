package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/phillip-england/staffsuite/internal/clientapp"
	"github.com/phillip-england/staffsuite/internal/envutil"
)

func main() {
	if err := envutil.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	cfg, err := clientapp.ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := clientapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
