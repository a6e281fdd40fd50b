package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bmidash/internal/config"
	"bmidash/internal/infrastructure"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp091.Publishing
	keys       []string
	deliveries chan amqp091.Delivery
	declareErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp091.Delivery, 8)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, "exchange:"+name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	f.declared = append(f.declared, "queue:"+name)
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, "bind:"+name+":"+key+":"+exchange)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *ackRecorder) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}

func testConfig() config.MessagingConfig {
	return config.MessagingConfig{Exchange: "bmidash", Queue: "bmidash.selection", RoutingKey: "selection.changed"}
}

func testClient(t *testing.T) (*Client, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	client, err := NewClient(ch, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client, ch
}

func sampleEvent() events.SelectionChanged {
	return events.SelectionChanged{
		ID:         "evt-1",
		Previous:   domain.Selection{Sex: domain.SexBoth},
		Current:    domain.Selection{Sex: domain.SexMale},
		Rows:       map[domain.DatasetKind]int{domain.DatasetMean: 2},
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		TraceID:    "trace-1",
	}
}

func TestNewClientDeclaresTopology(t *testing.T) {
	_, ch := testClient(t)
	assert.Equal(t, []string{
		"exchange:bmidash:direct",
		"queue:bmidash.selection",
		"bind:bmidash.selection:selection.changed:bmidash",
	}, ch.declared)
}

func TestNewClientSetupFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")

	_, err := NewClient(ch, testConfig(), nil)
	require.Error(t, err)
	assert.True(t, ch.closed)
}

func TestNewClientDefaultsRoutingKeyToQueue(t *testing.T) {
	ch := newFakeChannel()
	cfg := testConfig()
	cfg.RoutingKey = ""
	_, err := NewClient(ch, cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, ch.declared, "bind:bmidash.selection:bmidash.selection:bmidash")
}

func TestPublishSelectionChanged(t *testing.T) {
	client, ch := testClient(t)
	evt := sampleEvent()

	require.NoError(t, client.PublishSelectionChanged(context.Background(), evt))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "selection.changed", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)
	assert.Equal(t, "trace-1", msg.CorrelationId)

	var decoded events.SelectionChanged
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestConsumeSelectionChanged(t *testing.T) {
	client, ch := testClient(t)
	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	acks := &ackRecorder{}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: body}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: []byte("not json")}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: body}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []events.SelectionChanged
		traceIDs []string
	)
	calls := 0
	handler := func(ctx context.Context, evt events.SelectionChanged) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		traceIDs = append(traceIDs, infrastructure.GetTraceID(ctx))
		if calls == 2 {
			return errors.New("downstream busy")
		}
		received = append(received, evt)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.ConsumeSelectionChanged(ctx, handler) }()

	require.Eventually(t, func() bool {
		a, n := acks.counts()
		return a == 1 && n == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, domain.SexMale, received[0].Current.Sex)
	assert.Equal(t, []string{"trace-1", "trace-1"}, traceIDs)
	// the undecodable message is dropped, the failed one requeued
	assert.Equal(t, []bool{false, true}, acks.requeue)
}

func TestConsumeStopsWhenChannelCloses(t *testing.T) {
	client, ch := testClient(t)
	close(ch.deliveries)

	err := client.ConsumeSelectionChanged(context.Background(), func(context.Context, events.SelectionChanged) error { return nil })
	assert.ErrorIs(t, err, ErrConsumerClosed)
}

func TestClose(t *testing.T) {
	client, ch := testClient(t)
	require.NoError(t, client.Close())
	assert.True(t, ch.closed)
}
