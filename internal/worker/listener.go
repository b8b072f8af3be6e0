package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/service/availability"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/messaging"
)

// Syncer syncs a single calendar on request.
type Syncer interface {
	SyncCalendar(ctx context.Context, key model.CalendarKey) (*availability.SyncResult, error)
}

// SyncListener turns sync requests published on a broker channel into
// immediate calendar syncs. The payload is a JSON calendar key.
type SyncListener struct {
	broker  messaging.Broker
	channel string
	syncer  Syncer
	logger  *logger.Logger
}

func NewSyncListener(broker messaging.Broker, channel string, syncer Syncer, log *logger.Logger) *SyncListener {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncListener{broker: broker, channel: channel, syncer: syncer, logger: log}
}

// Run blocks until ctx is done or the subscription ends.
func (l *SyncListener) Run(ctx context.Context) error {
	msgs, err := l.broker.Subscribe(ctx, l.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to sync requests: %w", err)
	}
	l.logger.Info("listening for sync requests", "channel", l.channel)

	for msg := range msgs {
		l.handle(ctx, msg)
	}
	return ctx.Err()
}

func (l *SyncListener) handle(ctx context.Context, payload []byte) {
	var key model.CalendarKey
	if err := json.Unmarshal(payload, &key); err != nil {
		l.logger.Warn("discarding malformed sync request", "error", err.Error())
		return
	}

	result, err := l.syncer.SyncCalendar(ctx, key)
	if err != nil {
		l.logger.Error(err, "requested sync failed", "calendar", key.String())
		return
	}
	l.logger.Info("requested sync completed", "calendar", key.String(), "slots", result.SyncedSlots)
}

// Invalidator drops cached state derived from the set of calendars.
type Invalidator interface {
	Invalidate()
}

// InvalidationListener invalidates a cache for every event received on a
// broker channel. The payload is not inspected.
type InvalidationListener struct {
	broker  messaging.Broker
	channel string
	cache   Invalidator
	logger  *logger.Logger
}

func NewInvalidationListener(broker messaging.Broker, channel string, cache Invalidator, log *logger.Logger) *InvalidationListener {
	if log == nil {
		log = logger.Nop()
	}
	return &InvalidationListener{broker: broker, channel: channel, cache: cache, logger: log}
}

// Run blocks until ctx is done or the subscription ends.
func (l *InvalidationListener) Run(ctx context.Context) error {
	msgs, err := l.broker.Subscribe(ctx, l.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.channel, err)
	}
	l.logger.Debug("listening for calendar changes", "channel", l.channel)

	for range msgs {
		l.cache.Invalidate()
	}
	return ctx.Err()
}
