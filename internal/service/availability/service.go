package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/messaging"
	"github.com/jwalitptl/availability-api/pkg/metrics"
)

const (
	DefaultHorizonDays   = 21
	DefaultRetentionDays = 21
	DaysPerWeek          = 7

	// defaultViewDays bounds GetAppointments when no end date is given.
	defaultViewDays = 366
)

// Event types published after state changes.
const (
	EventSynced    = "synced"
	EventBooked    = "booked"
	EventCancelled = "cancelled"
)

// Fetcher returns the upstream snapshot of one calendar.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, key model.CalendarKey) (*model.Snapshot, error)
}

// KeyCache holds data derived from the set of calendars and is dropped
// whenever that set may have changed.
type KeyCache interface {
	Invalidate()
}

type Config struct {
	Location      *time.Location
	DefaultSlots  []model.TimeOfDay
	HorizonDays   int
	RetentionDays int
	FreshFor      time.Duration
	OutdatedAfter time.Duration
	FetchTimeout  time.Duration
}

// ConfigFrom derives the engine settings from application config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone: %w", err)
	}
	return Config{
		Location:      loc,
		DefaultSlots:  cfg.SlotGrid(),
		HorizonDays:   cfg.Sync.HorizonDays,
		RetentionDays: cfg.Sync.RetentionDays,
		FreshFor:      cfg.Sync.FreshFor,
		OutdatedAfter: cfg.Sync.OutdatedAfter,
		FetchTimeout:  cfg.Sync.FetchTimeout,
	}, nil
}

func (c *Config) setDefaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if len(c.DefaultSlots) == 0 {
		c.DefaultSlots = model.SlotGrid("09:00", "20:30", 30*time.Minute)
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = DefaultHorizonDays
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.FreshFor <= 0 {
		c.FreshFor = time.Hour
	}
	if c.OutdatedAfter <= c.FreshFor {
		c.OutdatedAfter = 24 * time.Hour
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
}

// Service keeps local availability in line with the upstream source and
// serves the booking and read operations.
type Service struct {
	repo      repository.AvailabilityRepository
	fetcher   Fetcher
	publisher messaging.Publisher
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	keys      KeyCache
	now       func() time.Time
}

// NewService wires the engine. fetcher may be nil for local-only
// deployments, in which case every sync fails with a SyncFailure.
func NewService(
	repo repository.AvailabilityRepository,
	fetcher Fetcher,
	publisher messaging.Publisher,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	cfg.setDefaults()
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New("availability")
	}
	return &Service{
		repo:      repo,
		fetcher:   fetcher,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
}

// SetKeyCache registers a cache to invalidate after syncs, initializations
// and deletions.
func (s *Service) SetKeyCache(cache KeyCache) {
	s.keys = cache
}

func (s *Service) invalidateKeys() {
	if s.keys != nil {
		s.keys.Invalidate()
	}
}

// Today is the current civil date in the configured location.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.cfg.Location))
}

func (s *Service) syncStatus(cal *model.Calendar) model.SyncStatus {
	return model.ComputeSyncStatus(cal.LastSyncedAt, s.now(), s.cfg.FreshFor, s.cfg.OutdatedAfter)
}

func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", "event", eventType, "error", err.Error())
	}
}

func validKey(key model.CalendarKey) error {
	if key.DoctorID == "" || key.ClinicID == "" || key.TreatmentType == "" {
		return ErrInvalidKey
	}
	return nil
}
