package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []messages.FloodAlertEvent
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, evt messages.FloodAlertEvent) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("notify called without a deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeHistory struct{ readings []messages.SensorReading }

func (f *fakeHistory) Write(r messages.SensorReading) { f.readings = append(f.readings, r) }

type fakeBroadcaster struct{ snaps []Snapshot }

func (f *fakeBroadcaster) Broadcast(s Snapshot) { f.snaps = append(f.snaps, s) }

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

type fakeConsumer struct {
	handler    rabbitmq.Handler
	subscribed chan struct{}
}

func (c *fakeConsumer) SetHandler(h rabbitmq.Handler) { c.handler = h }

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) error {
	close(c.subscribed)
	<-ctx.Done()
	return nil
}

type fixture struct {
	svc      *Service
	notifier *fakeNotifier
	history  *fakeHistory
	hub      *fakeBroadcaster
	metrics  *Metrics
}

func newFixture(t *testing.T, d *dedup.Deduper) fixture {
	t.Helper()
	f := fixture{
		notifier: &fakeNotifier{},
		history:  &fakeHistory{},
		hub:      &fakeBroadcaster{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	svc, err := NewService(Options{
		Notifier:    f.notifier,
		History:     f.history,
		Broadcaster: f.hub,
		Deduper:     d,
		Metrics:     f.metrics,
		Now:         func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

const (
	criticalPayload = `{"station_id":"st-1","temperature":30,"humidity":95,"distance_cm":2,"flow_rate_lpm":22}`
	normalPayload   = `{"station_id":"st-1","temperature":20,"humidity":50,"distance_cm":15,"flow_rate_lpm":2}`
)

func TestIngestNotifiesOnlyNonNormal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	snap, err := f.svc.Ingest(ctx, []byte(normalPayload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.Classification.Level != alert.LevelNormal || f.notifier.count() != 0 {
		t.Fatalf("normal reading must not notify: level=%s notified=%d", snap.Classification.Level, f.notifier.count())
	}

	snap, err = f.svc.Ingest(ctx, []byte(criticalPayload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.Classification.Level != alert.LevelCritical {
		t.Fatalf("expected critical, got %s", snap.Classification.Level)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", f.notifier.count())
	}
	evt := f.notifier.events[0]
	if evt.StationID != "st-1" || evt.Title != "CRITICAL ALERT" || evt.Color != string(alert.ColorRed) {
		t.Fatalf("unexpected event %+v", evt)
	}
	if !evt.Timestamp.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("event timestamp: got %s", evt.Timestamp)
	}

	if len(f.history.readings) != 2 || len(f.hub.snaps) != 2 {
		t.Fatalf("history=%d broadcasts=%d, want 2 each", len(f.history.readings), len(f.hub.snaps))
	}
	if got := testutil.ToFloat64(f.metrics.Readings.WithLabelValues("critical")); got != 1 {
		t.Fatalf("critical readings counter: got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.Level); got != 3 {
		t.Fatalf("level gauge: got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("ok")); got != 1 {
		t.Fatalf("notification counter: got %v", got)
	}
}

func TestIngestRejectsIncompleteWithoutReplacing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, []byte(criticalPayload)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	snap, err := f.svc.Ingest(ctx, []byte(`{"temperature":20}`))
	if !errors.Is(err, ErrIncompleteReading) {
		t.Fatalf("expected ErrIncompleteReading, got %v", err)
	}
	if snap.Sequence != 1 || snap.Classification.Level != alert.LevelCritical {
		t.Fatalf("rejected payload replaced the snapshot: %+v", snap)
	}
	if got := testutil.ToFloat64(f.metrics.DecodeErrors); got != 1 {
		t.Fatalf("decode error counter: got %v", got)
	}
	if len(f.history.readings) != 1 {
		t.Fatalf("rejected payload must not reach history")
	}
}

func TestIngestNullReadingIsNoData(t *testing.T) {
	f := newFixture(t, nil)
	snap, err := f.svc.Ingest(context.Background(), []byte("null"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.Reading != nil || snap.Classification.Message != alert.MsgNoData || snap.Sequence != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(f.history.readings) != 0 || f.notifier.count() != 0 {
		t.Fatalf("absent reading must not be stored or notified")
	}
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("sink down")
	snap, err := f.svc.Ingest(context.Background(), []byte(criticalPayload))
	if err != nil {
		t.Fatalf("notification failure must not fail ingest: %v", err)
	}
	if f.svc.State().Latest().Sequence != snap.Sequence {
		t.Fatalf("state not updated")
	}
	if got := testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("error")); got != 1 {
		t.Fatalf("error counter: got %v", got)
	}
}

func TestStartDropsRedeliveries(t *testing.T) {
	f := newFixture(t, dedup.New(time.Minute, 100))
	consumer := &fakeConsumer{subscribed: make(chan struct{})}
	f.svc.consumer = consumer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Start(ctx) }()
	<-consumer.subscribed

	msg := fakeMessage{payload: []byte(criticalPayload)}
	for i := 0; i < 3; i++ {
		if err := consumer.handler("sensors", msg); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	if err := consumer.handler("sensors", fakeMessage{payload: []byte("{")}); err == nil {
		t.Fatalf("malformed payload should surface an error to the consumer")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}

	if f.notifier.count() != 1 {
		t.Fatalf("redeliveries must be dropped, notified %d times", f.notifier.count())
	}
	if got := testutil.ToFloat64(f.metrics.Duplicates); got != 2 {
		t.Fatalf("duplicate counter: got %v", got)
	}
}

func TestStartWithoutConsumer(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.svc.Start(context.Background()); err == nil {
		t.Fatalf("expected error without consumer")
	}
}

func TestIngestRejectsNonFiniteStrings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, []byte(normalPayload)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	payload := `{"temperature":"NaN","humidity":50,"distance_cm":2,"flow_rate_lpm":25}`
	snap, err := f.svc.Ingest(ctx, []byte(payload))
	if !errors.Is(err, ErrIncompleteReading) {
		t.Fatalf("expected ErrIncompleteReading, got %v", err)
	}
	if snap.Sequence != 1 || snap.Classification.Level != alert.LevelNormal {
		t.Fatalf("non-finite reading replaced the snapshot: %+v", snap)
	}
	if f.notifier.count() != 0 || len(f.history.readings) != 1 {
		t.Fatalf("non-finite reading reached the sinks: notified=%d history=%d", f.notifier.count(), len(f.history.readings))
	}
}
