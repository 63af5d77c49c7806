package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	failures int
	calls    int
	msgs     []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafkaPublisher_RequiresConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestKafkaPublisher_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newKafkaPublisher(w, 3, time.Second)
	p.backoff = time.Millisecond

	ev, err := New(TypeAllocationCompleted, "run-1", "admin", CompletedPayload{Participants: 2, Assigned: 3})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, 3, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, TypeAllocationCompleted, string(w.msgs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "run-1", got.RunID)

	var payload CompletedPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, 3, payload.Assigned)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newKafkaPublisher(w, 2, time.Second)
	p.backoff = time.Millisecond

	ev, err := New(TypeAllocationPublished, "", "admin", nil)
	require.NoError(t, err)
	err = p.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

func TestKafkaPublisher_StopsOnCancel(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newKafkaPublisher(w, 5, time.Second)
	p.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, Event{Type: TypeAllocationUnpublished})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}
