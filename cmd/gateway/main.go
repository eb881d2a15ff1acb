// The gateway binary: tenant-aware edge authentication and real-time
// notification fan-out in front of the downstream business services.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/internal/config"
	"github.com/hscale/adx-gateway/internal/gateway"
	"github.com/hscale/adx-gateway/internal/workflow"
	"github.com/hscale/adx-gateway/pkg/auth"
	"github.com/hscale/adx-gateway/pkg/logger"
	"github.com/hscale/adx-gateway/pkg/metrics"
	"github.com/hscale/adx-gateway/pkg/notify"
	"github.com/hscale/adx-gateway/pkg/quota"
	"github.com/hscale/adx-gateway/pkg/redis"
	"github.com/hscale/adx-gateway/pkg/tenant"
	"github.com/hscale/adx-gateway/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting gateway", zap.String("env", cfg.AppEnv), zap.String("port", cfg.AppPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publicKey, err := auth.ParsePublicKey([]byte(cfg.JWTPublicKey))
	if err != nil {
		log.Error("invalid JWT_PUBLIC_KEY", zap.Error(err))
		os.Exit(1)
	}

	// Redis backs sessions, tenant cache, and rate counters. If it is down
	// at boot the gateway still starts on the in-memory store; limits then
	// hold per instance instead of per fleet.
	var store redis.Store = redis.NewMemStore()
	client, err := redis.NewClient(redis.Config{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		MaxRetries:   cfg.RedisMaxRetries,
	}, log)
	if err != nil {
		log.Warn("redis unavailable, using in-memory store", zap.Error(err))
	} else {
		defer client.Close()
		store = redis.NewFallbackStore(redis.NewCache(client), redis.NewMemStore(), log)
	}

	validator := auth.NewValidator(publicKey, store, log)
	upstream := tenant.NewHTTPService(cfg.TenantServiceURL, &http.Client{Timeout: cfg.UpstreamTimeout})
	resolver := tenant.NewResolver(store, upstream, cfg.TenantCacheTTL, log)
	gate := quota.NewGate(quota.NewHTTPCommitter(cfg.DownstreamURL, cfg.UpstreamTimeout), resolver, log)

	registry := ws.NewRegistry(cfg.HeartbeatInterval, log)
	go registry.Run(ctx)

	sampler := metrics.NewHeapLoadSampler(15 * time.Second)
	go sampler.Run(ctx)

	wfClient := workflow.NewClient(cfg.WorkflowEngineURL, cfg.UpstreamTimeout, log)
	dispatcher := notify.NewDispatcher(registry, resolver, log)
	streamer := workflow.NewStreamer(wfClient, dispatcher, time.Second, log)

	srv, err := gateway.NewServer(ctx, gateway.Deps{
		Config:    cfg,
		Log:       log,
		Validator: validator,
		Resolver:  resolver,
		Gate:      gate,
		Store:     store,
		Sampler:   sampler,
		WS:        ws.NewHandler(registry, validator, cfg.WSAllowedOrigins, log),
		Workflows: wfClient,
		Streamer:  streamer,
	})
	if err != nil {
		log.Error("server setup failed", zap.Error(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("gateway stopped")
}
