package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credvault/internal/config"
	"credvault/internal/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	exchanges []string
	keys      []string
	messages  []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.exchanges = append(f.exchanges, exchange)
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() Event {
	reason := "Expired document"
	return Event{
		Kind:          models.KindDocument,
		RecordID:      "dc-abc123",
		PersonID:      "p-ana",
		State:         models.StateRejected,
		Justification: &reason,
		DecidedBy:     "au-hr",
		DecidedAt:     time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAMQPNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := newAMQPNotifierWithPublisher(pub, "credvault", "credential.decided")

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "credvault", pub.exchanges[0])
	assert.Equal(t, "credential.decided.document.rejected", pub.keys[0])
	assert.Equal(t, "application/json", pub.messages[0].ContentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0].Body, &decoded))
	assert.Equal(t, "dc-abc123", decoded["record_id"])
	assert.Equal(t, "rejected", decoded["state"])
	assert.Equal(t, "Expired document", decoded["justification"])

	require.NoError(t, n.Close())
	assert.True(t, pub.closed)
}

func TestAMQPNotifierPropagatesErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	n := newAMQPNotifierWithPublisher(pub, "credvault", "credential.decided")
	assert.Error(t, n.Notify(context.Background(), sampleEvent()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, sampleEvent()), context.Canceled)
}

func TestAMQPNotifierConcurrentPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := newAMQPNotifierWithPublisher(pub, "x", "k")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = n.Notify(context.Background(), sampleEvent())
		}()
	}
	wg.Wait()
	assert.Len(t, pub.messages, 16)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := NewLogNotifier(logger)

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	out := buf.String()
	assert.True(t, strings.Contains(out, "credential decided"), out)
	assert.True(t, strings.Contains(out, "record_id=dc-abc123"), out)
	assert.True(t, strings.Contains(out, "component=notify"), out)
}

func TestNewSelectsDriver(t *testing.T) {
	n, err := New(config.NotifyConfig{Driver: config.NotifyDriverNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)

	n, err = New(config.NotifyConfig{Driver: config.NotifyDriverLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	_, err = New(config.NotifyConfig{Driver: "smtp"}, nil)
	assert.Error(t, err)
}

func TestEventFromCredential(t *testing.T) {
	decided := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	event := EventFromCredential(&models.Credential{
		ID: "tt-xyz789", Kind: models.KindTitle, PersonID: "p-luis",
		State: models.StateApproved, DecidedBy: "au-1", DecidedAt: &decided,
	})
	assert.Equal(t, "tt-xyz789", event.RecordID)
	assert.Equal(t, decided, event.DecidedAt)
	assert.Nil(t, event.Justification)
}
