package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	channels []string
	messages []interface{}
}

func (b *recordingBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.channels = append(b.channels, channel)
	b.messages = append(b.messages, message)
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *recordingBroker) Close() error { return nil }

func TestEventPublisher_Publish(t *testing.T) {
	broker := &recordingBroker{}
	pub := NewEventPublisher(broker, "availability")
	fixed := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	err := pub.Publish(context.Background(), "booked", map[string]string{"doctor_id": "D1"})
	require.NoError(t, err)

	require.Len(t, broker.messages, 1)
	assert.Equal(t, "availability.booked", broker.channels[0])
	evt, ok := broker.messages[0].(Event)
	require.True(t, ok)
	assert.Equal(t, "booked", evt.Type)
	assert.Equal(t, fixed, evt.OccurredAt)
}

func TestEventPublisher_ChannelWithoutPrefix(t *testing.T) {
	pub := NewEventPublisher(&recordingBroker{}, "")
	assert.Equal(t, "synced", pub.Channel("synced"))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), "synced", nil))
}
