package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/metrics"
)

var ErrUnknownJob = errors.New("unknown job")

const (
	DefaultLogCapacity = 100
	defaultLogLimit    = 20
)

type Config struct {
	AutoSyncInterval time.Duration
	CleanupInterval  time.Duration
	ExtendInterval   time.Duration
	LogCapacity      int
	RetentionDays    int
}

func (c *Config) setDefaults() {
	if c.AutoSyncInterval <= 0 {
		c.AutoSyncInterval = 30 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 24 * time.Hour
	}
	if c.ExtendInterval <= 0 {
		c.ExtendInterval = 7 * 24 * time.Hour
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = DefaultLogCapacity
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 21
	}
}

// Scheduler runs the three lifecycle jobs on fixed intervals and on demand.
// Scheduled and manual runs share RunJob. Runs are not locked against each
// other; every job body is idempotent.
type Scheduler struct {
	engine  Engine
	logs    repository.JobLogRepository
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	cron    *cron.Cron
	jobs    map[model.JobName]jobFunc
	mu      sync.Mutex
	entries map[model.JobName]cron.EntryID
}

func NewScheduler(engine Engine, logs repository.JobLogRepository, cfg Config, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	cfg.setDefaults()
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New("availability")
	}

	s := &Scheduler{
		engine:  engine,
		logs:    logs,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		now:     time.Now,
		entries: make(map[model.JobName]cron.EntryID),
	}
	cl := cronLogger{log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	s.jobs = map[model.JobName]jobFunc{
		model.JobAutoSync:      s.autoSync,
		model.JobCleanup:       s.cleanup,
		model.JobExtendHorizon: s.extendHorizon,
	}
	return s
}

func (s *Scheduler) interval(name model.JobName) time.Duration {
	switch name {
	case model.JobAutoSync:
		return s.cfg.AutoSyncInterval
	case model.JobCleanup:
		return s.cfg.CleanupInterval
	default:
		return s.cfg.ExtendInterval
	}
}

// Start schedules every job. Runs triggered by the timer use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range model.JobNames {
		name := name
		spec := "@every " + s.interval(name).String()
		id, err := s.cron.AddFunc(spec, func() {
			// Errors are already recorded in the job log.
			_, _ = s.RunJob(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		s.entries[name] = id
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"auto_sync", s.cfg.AutoSyncInterval.String(),
		"cleanup", s.cfg.CleanupInterval.String(),
		"extend_horizon", s.cfg.ExtendInterval.String(),
	)
	return nil
}

// Stop stops the timer and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunJob executes name now and records the run in the job log.
func (s *Scheduler) RunJob(ctx context.Context, name model.JobName) (*model.JobLog, error) {
	body, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	record := &model.JobLog{
		JobName:   name,
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		Status:    model.JobStatusStarted,
	}
	id, err := s.logs.Start(ctx, name, record.RunID, record.StartedAt, s.cfg.LogCapacity)
	if err != nil {
		s.metrics.JobRuns.WithLabelValues(string(name), string(model.JobStatusError)).Inc()
		s.logger.Error(err, "failed to record job start", "job", string(name))
		return nil, err
	}
	record.ID = id

	log := s.logger.WithFields(map[string]interface{}{"job": string(name), "run_id": record.RunID})
	log.Info("job started")

	start := time.Now()
	message, runErr := body(ctx)
	s.metrics.JobDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())

	record.Status = model.JobStatusSuccess
	record.Message = message
	if runErr != nil {
		record.Status = model.JobStatusError
		record.Message = runErr.Error()
		log.Error(runErr, "job failed")
	} else {
		log.Info("job finished", "message", message)
	}
	s.metrics.JobRuns.WithLabelValues(string(name), string(record.Status)).Inc()

	finished := s.now().UTC()
	record.FinishedAt = &finished
	if err := s.logs.Finish(ctx, id, record.Status, record.Message, finished); err != nil {
		log.Error(err, "failed to record job result")
		if runErr == nil {
			runErr = err
		}
	}
	return record, runErr
}

// RecentLogs returns up to limit job log records, newest first.
func (s *Scheduler) RecentLogs(ctx context.Context, limit int) ([]*model.JobLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > s.cfg.LogCapacity {
		limit = s.cfg.LogCapacity
	}
	return s.logs.Recent(ctx, limit)
}

// Jobs describes every job with its schedule. Next and previous run times
// are only known once Start was called.
func (s *Scheduler) Jobs() []model.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]model.JobInfo, 0, len(model.JobNames))
	for _, name := range model.JobNames {
		info := model.JobInfo{Name: name, Interval: s.interval(name).String()}
		if id, ok := s.entries[name]; ok {
			entry := s.cron.Entry(id)
			if !entry.Next.IsZero() {
				next := entry.Next
				info.NextRun = &next
			}
			if !entry.Prev.IsZero() {
				prev := entry.Prev
				info.PrevRun = &prev
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// cronLogger routes cron's own messages into the service logger, with its
// chatty scheduling messages at debug level.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(err, "cron: "+msg, keysAndValues...)
}
