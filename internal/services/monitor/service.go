// Package monitor consumes the sensors feed, classifies every reading and fans the
// result out to the state container, history, dashboards and alert sinks.
package monitor

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/flood_monitor/internal/services/notifier"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

// HistoryWriter stores raw readings.
type HistoryWriter interface {
	Write(r messages.SensorReading)
}

// Broadcaster pushes snapshots to live dashboards.
type Broadcaster interface {
	Broadcast(s Snapshot)
}

type Options struct {
	Consumer      rabbitmq.IConsumer
	Classifier    *alert.Classifier
	State         *State
	Notifier      notifier.Notifier
	History       HistoryWriter
	Deduper       *dedup.Deduper
	Metrics       *Metrics
	Broadcaster   Broadcaster
	NotifyTimeout time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

type Service struct {
	consumer      rabbitmq.IConsumer
	classifier    *alert.Classifier
	state         *State
	notifier      notifier.Notifier
	history       HistoryWriter
	deduper       *dedup.Deduper
	metrics       *Metrics
	broadcaster   Broadcaster
	notifyTimeout time.Duration
	log           *zap.Logger
	now           func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Classifier == nil {
		opts.Classifier = alert.NewClassifier(alert.DefaultThresholds())
	}
	if opts.State == nil {
		opts.State = NewState(opts.Classifier)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 3 * time.Second
	}
	s := &Service{
		consumer:      opts.Consumer,
		classifier:    opts.Classifier,
		state:         opts.State,
		notifier:      opts.Notifier,
		history:       opts.History,
		deduper:       opts.Deduper,
		metrics:       opts.Metrics,
		broadcaster:   opts.Broadcaster,
		notifyTimeout: opts.NotifyTimeout,
		log:           opts.Logger,
		now:           opts.Now,
	}
	return s, nil
}

// State returns the container the service writes to.
func (s *Service) State() *State { return s.state }

// Classifier returns the configured classifier.
func (s *Service) Classifier() *alert.Classifier { return s.classifier }

// Start installs the message handler and blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	if s.consumer == nil {
		return errors.New("monitor: no consumer configured")
	}
	for _, inc := range s.classifier.Thresholds().Inconsistencies() {
		s.log.Warn("threshold table inconsistent", zap.String("detail", inc.String()))
	}
	s.consumer.SetHandler(func(topic string, m mqtt.Message) error {
		return s.handleMessage(ctx, topic, m.Payload())
	})
	return s.consumer.ConsumeMessage(ctx)
}

func (s *Service) handleMessage(ctx context.Context, topic string, payload []byte) error {
	if !s.deduper.ShouldProcessPayload(payload) {
		s.metrics.duplicate()
		s.log.Debug("duplicate payload dropped", zap.String("topic", topic))
		return nil
	}
	_, err := s.Ingest(ctx, payload)
	return err
}

// Ingest runs one payload through the pipeline and returns the resulting snapshot.
// On a decode error the stored snapshot is left untouched and returned alongside the error.
func (s *Service) Ingest(ctx context.Context, payload []byte) (Snapshot, error) {
	r, err := DecodeReading(payload)
	if err != nil {
		s.metrics.decodeError()
		return s.state.Latest(), err
	}

	c := s.classifier.Classify(r)
	snap := s.state.Update(r, c, s.classifier.Statuses(r))
	s.metrics.observe(r, c)

	if r != nil && s.history != nil {
		s.history.Write(*r)
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(snap)
	}

	fields := []zap.Field{
		zap.String("level", string(c.Level)),
		zap.Uint64("seq", snap.Sequence),
	}
	if r != nil {
		fields = append(fields, zap.String("station", r.StationID))
	}
	s.log.Debug("reading classified", fields...)

	if c.Level == alert.LevelNormal || r == nil || s.notifier == nil {
		return snap, nil
	}

	evt := notifier.NewEvent(*r, c, s.now())
	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	nerr := s.notifier.Notify(nctx, evt)
	s.metrics.notified(nerr)
	if nerr != nil {
		s.log.Warn("alert notification failed",
			zap.String("event_id", evt.ID), zap.String("level", evt.Level), zap.Error(nerr))
	} else {
		s.log.Info("alert notified",
			zap.String("event_id", evt.ID), zap.String("level", evt.Level), zap.String("station", evt.StationID))
	}
	return snap, nil
}
