package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/bootstrap"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := bootstrap.Run(ctx, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}
