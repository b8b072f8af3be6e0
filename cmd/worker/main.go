package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/availability-api/internal/app"
	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/pkg/auth"
	"github.com/jwalitptl/availability-api/pkg/logger"
)

var configFile string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Calendar availability lifecycle worker",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("AVAILABILITY_CONFIG_FILE"), "path to config.yml")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg.Log), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the lifecycle jobs on their schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return serve(cfg, log)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job now and exit",
		Long:      "Run one of auto_sync, cleanup or extend_horizon once, for external schedulers.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.JobAutoSync), string(model.JobCleanup), string(model.JobExtendHorizon)},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := model.JobName(args[0])
			if !name.Valid() {
				return fmt.Errorf("unknown job %q", args[0])
			}

			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.Scheduler.RunJob(ctx, name)
			if record != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", record.JobName, record.Status, record.Message)
			}
			return err
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			db, err := app.OpenDB(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			token, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serve(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	registry := prometheus.NewRegistry()
	if err := a.Metrics.Register(registry); err != nil {
		return err
	}
	srv := healthServer(cfg.Scheduler.HealthPort, a, registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
			stop()
		}
	}()

	if listener := a.SyncListener(); listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(err, "sync listener stopped")
			}
		}()
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	log.WithFields(a.Describe()).Info("worker started")

	<-ctx.Done()
	log.Info("Shutting down...")
	a.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(port int, a *app.App, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Availability.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
