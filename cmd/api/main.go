package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/availability-api/internal/app"
	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/handler/admin"
	"github.com/jwalitptl/availability-api/internal/handler/availability"
	"github.com/jwalitptl/availability-api/internal/handler/filter"
	"github.com/jwalitptl/availability-api/internal/handler/health"
	"github.com/jwalitptl/availability-api/internal/handler/prometheus"
	"github.com/jwalitptl/availability-api/internal/middleware"
	"github.com/jwalitptl/availability-api/internal/router"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("AVAILABILITY_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize application")
	}
	defer a.Close()

	prom, err := prometheus.New(a.Metrics)
	if err != nil {
		logger.Fatal(err, "failed to register metrics")
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Server.AllowedOrigins

	routerCfg := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     cors,
		Auth: middleware.AuthConfig{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
		},
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("admin endpoints are not protected, set AVAILABILITY_JWT_SECRET")
	}

	r, err := router.NewRouter(routerCfg, router.Handlers{
		Availability: availability.NewHandler(a.Availability),
		Filter:       filter.NewHandler(a.Filter, cfg.Filter.Settings()),
		Admin:        admin.NewHandler(a.Availability, a.Scheduler),
		Health:       health.NewHandler(a.Availability),
		Metrics:      prom,
	}, logger, a.Metrics)
	if err != nil {
		logger.Fatal(err, "failed to build router")
	}
	r.Setup()

	if l := a.InvalidationListener(); l != nil {
		go func() {
			if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(err, "filter cache invalidation stopped")
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			logger.Fatal(err, "failed to start scheduler")
		}
		defer a.Scheduler.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()
	logger.WithFields(a.Describe()).Info("availability api started")

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}

	logger.Info("server exited properly")
}
