package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/service/availability"
)

type chanBroker struct {
	ch chan []byte
}

func (b *chanBroker) Publish(context.Context, string, interface{}) error { return nil }

func (b *chanBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func (b *chanBroker) Close() error { return nil }

type recordingSyncer struct {
	mu   sync.Mutex
	keys []model.CalendarKey
}

func (s *recordingSyncer) SyncCalendar(_ context.Context, key model.CalendarKey) (*availability.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return &availability.SyncResult{Key: key}, nil
}

func (s *recordingSyncer) seen() []model.CalendarKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CalendarKey(nil), s.keys...)
}

func TestSyncListener_Run(t *testing.T) {
	broker := &chanBroker{ch: make(chan []byte, 3)}
	syncer := &recordingSyncer{}
	l := NewSyncListener(broker, "sync", syncer, nil)

	broker.ch <- []byte(`{"doctor_id":"D1","clinic_id":"C1","treatment_type":"general"}`)
	broker.ch <- []byte(`not json`)
	broker.ch <- []byte(`{"doctor_id":"D2","clinic_id":"C1","treatment_type":"general"}`)
	close(broker.ch)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}

	keys := syncer.seen()
	require.Len(t, keys, 2)
	assert.Equal(t, "D1", keys[0].DoctorID)
	assert.Equal(t, "D2", keys[1].DoctorID)
}

type countingCache struct {
	mu sync.Mutex
	n  int
}

func (c *countingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestInvalidationListener_Run(t *testing.T) {
	broker := &chanBroker{ch: make(chan []byte, 2)}
	cache := &countingCache{}
	l := NewInvalidationListener(broker, "availability.synced", cache, nil)

	broker.ch <- []byte(`{"type":"synced","payload":{"calendar_id":1}}`)
	broker.ch <- []byte(`{"type":"synced","payload":{"calendar_id":2}}`)
	close(broker.ch)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, 2, cache.count())
}
