package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dinehub/realtime-gateway/internal/config"
	"github.com/dinehub/realtime-gateway/internal/registry"
	"github.com/dinehub/realtime-gateway/internal/server"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting realtime gateway")

	var instances registry.InstanceRegistry = registry.Noop{}
	if cfg.Redis.Enabled {
		redisRegistry, err := registry.NewRedisRegistry(cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize redis registry")
		}
		defer redisRegistry.Close()
		instances = redisRegistry
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	gateway, err := server.New(cfg, instances)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to build gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gateway.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start gateway")
	}
	defer gateway.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(l))

	wsHandler := server.NewWSHandler(gateway)
	httpHandler := server.NewHTTPHandler(gateway)
	httpHandler.RegisterRoutes(engine, wsHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("gateway stopped")
}
