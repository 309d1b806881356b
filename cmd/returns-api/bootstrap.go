package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ReturnBox/config"
	returnsapi "github.com/BearBump/ReturnBox/internal/api/returns_api"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/logger"
	"github.com/BearBump/ReturnBox/internal/notifystack"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/BearBump/ReturnBox/internal/storage/pgreturns"
	"go.uber.org/zap"
)

type returnsAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   returnsAPIOpts
	log    *zap.Logger

	api    *returnsapi.API
	checks []readinessCheck

	closers []func()
}

func mustBootstrapReturnsAPI() *returnsAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error: %v", err))
	}

	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = cfg.ReturnBox.SwaggerPath
	}
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	log, err := logger.New(cfg.ReturnBox.Env)
	if err != nil {
		panic(fmt.Sprintf("logger init: %v", err))
	}

	httpAddr := cfg.ReturnBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	cacheTTL := time.Duration(cfg.ReturnBox.ReturnCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	app := &returnsAPIApp{log: log}

	st := mustOpenPostgresWithRetry(cfg.Database.DSN(), 60*time.Second, log)
	app.closers = append(app.closers, st.Close)

	rc := rediscache.NewReturnCache(cfg.Redis.Addr())
	app.closers = append(app.closers, func() { _ = rc.Close() })

	stack, err := notifystack.Build(cfg, st, log)
	if err != nil {
		app.Close()
		panic(fmt.Sprintf("notification pipeline: %v", err))
	}
	app.closers = append(app.closers, stack.Close)

	svc := returns.New(st, st, stack.Notifier, log.With(zap.String("component", "returns"))).
		WithCache(rc, cacheTTL)

	app.api = returnsapi.New(returnsapi.Deps{
		Returns:   svc,
		Users:     st,
		Shipments: st,
		Notifier:  stack.Notifier,
		Toggles:   stack.Toggles,
		Gate:      stack.Gate,
		Audit:     st,
	}, log.With(zap.String("component", "http")))
	app.checks = []readinessCheck{
		{name: "postgres", ping: st.Ping},
		{name: "redis", ping: rc.Ping},
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = returnsAPIOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
	}
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration, log *zap.Logger) *pgreturns.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgreturns.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		log.Warn("postgres not ready, retrying", zap.Error(err))
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *returnsAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *returnsAPIApp) Run() error {
	return runReturnsAPI(a.ctx, a.opts, a.api, a.checks, a.log)
}
