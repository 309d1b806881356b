package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse error: %v", err))
	}
	log, err := logger.New(cfg.ReturnBox.Env)
	if err != nil {
		panic(fmt.Sprintf("logger init: %v", err))
	}
	defer func() { _ = log.Sync() }()

	swaggerPath := os.Getenv("workerSwaggerPath")
	if swaggerPath == "" {
		swaggerPath = cfg.ReturnBox.WorkerSwaggerPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunDigestWorker(ctx, cfg, workerHTTPOpts{swaggerPath: swaggerPath}, defaultWorkerFactories(), log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("digest-worker stopped", zap.Error(err))
		cancel()
		_ = log.Sync()
		os.Exit(1)
	}
}
