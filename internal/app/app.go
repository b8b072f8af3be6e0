// Package app assembles the service graph shared by the API server and
// the worker from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/repository"
	"github.com/jwalitptl/availability-api/internal/repository/sqlstore"
	"github.com/jwalitptl/availability-api/internal/service/availability"
	"github.com/jwalitptl/availability-api/internal/service/filter"
	"github.com/jwalitptl/availability-api/internal/upstream"
	"github.com/jwalitptl/availability-api/internal/worker"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/messaging"
	"github.com/jwalitptl/availability-api/pkg/messaging/redis"
	"github.com/jwalitptl/availability-api/pkg/metrics"
)

const metricsNamespace = "availability"

type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	DB      *sqlx.DB
	// Broker is nil when no redis URL is configured.
	Broker messaging.Broker

	Repo         repository.AvailabilityRepository
	JobLogs      repository.JobLogRepository
	Availability *availability.Service
	Filter       *filter.Service
	Scheduler    *worker.Scheduler
}

// NewLogger builds the process logger and installs it as zerolog's global
// logger for libraries that log through it.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Pretty,
	})
	log.Logger = l.ZL
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Level))
	return l
}

// OpenDB connects to the configured store and applies pending migrations.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig, l *logger.Logger) (*sqlx.DB, error) {
	db, err := sqlstore.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(ctx, db, l.ZL); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  l,
		Metrics: metrics.New(metricsNamespace),
	}

	db, err := sqlstore.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if cfg.Database.AutoMigrate {
		if err := sqlstore.Migrate(ctx, db, l.ZL); err != nil {
			a.Close()
			return nil, err
		}
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
		}, l.ZL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Broker = broker
		publisher = messaging.NewEventPublisher(broker, cfg.Redis.ChannelPrefix)
	} else {
		l.Info("redis not configured, change events are not published")
	}

	var fetcher availability.Fetcher
	if cfg.Upstream.BaseURL != "" {
		client, err := upstream.NewClient(cfg.Upstream, a.Metrics, l)
		if err != nil {
			a.Close()
			return nil, err
		}
		fetcher = client
	} else {
		l.Warn("upstream base URL not configured, syncs will fail")
	}

	svcCfg, err := availability.ConfigFrom(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Repo = sqlstore.NewAvailabilityRepository(db)
	a.JobLogs = sqlstore.NewJobLogRepository(db)
	a.Availability = availability.NewService(a.Repo, fetcher, publisher, svcCfg, l, a.Metrics)
	a.Filter = filter.NewService(a.Repo, filter.LabelsFrom(cfg.Filter), cfg.Filter.CacheTTL, l)
	a.Availability.SetKeyCache(a.Filter)
	a.Scheduler = worker.NewScheduler(a.Availability, a.JobLogs, worker.Config{
		AutoSyncInterval: cfg.Scheduler.AutoSyncInterval,
		CleanupInterval:  cfg.Scheduler.CleanupInterval,
		ExtendInterval:   cfg.Scheduler.ExtendInterval,
		LogCapacity:      cfg.Scheduler.LogCapacity,
		RetentionDays:    cfg.Sync.RetentionDays,
	}, l, a.Metrics)

	return a, nil
}

// SyncListener returns a listener for sync requests, or nil without a broker.
func (a *App) SyncListener() *worker.SyncListener {
	if a.Broker == nil || a.Config.Redis.SyncChannel == "" {
		return nil
	}
	return worker.NewSyncListener(a.Broker, a.Config.Redis.SyncChannel, a.Availability, a.Logger)
}

// InvalidationListener returns a listener that drops the filter cache when
// another process syncs a calendar, or nil without a broker.
func (a *App) InvalidationListener() *worker.InvalidationListener {
	if a.Broker == nil {
		return nil
	}
	channel := messaging.NewEventPublisher(a.Broker, a.Config.Redis.ChannelPrefix).Channel(availability.EventSynced)
	return worker.NewInvalidationListener(a.Broker, channel, a.Filter, a.Logger)
}

func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Error(err, "failed to close broker")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error(err, "failed to close database")
		}
	}
}

// Describe summarizes the effective setup for the startup log.
func (a *App) Describe() map[string]interface{} {
	return map[string]interface{}{
		"driver":    a.Config.Database.Driver,
		"upstream":  a.Config.Upstream.BaseURL != "",
		"redis":     a.Broker != nil,
		"timezone":  a.Config.Sync.Timezone,
		"horizon":   fmt.Sprintf("%dd", a.Config.Sync.HorizonDays),
		"retention": fmt.Sprintf("%dd", a.Config.Sync.RetentionDays),
	}
}
