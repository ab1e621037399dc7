// Package sensor_simulator publishes synthetic flood sensor readings for one station.
package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

type SensorSimulator struct {
	mu        sync.Mutex
	station   string
	timer     *time.Timer // pending scenario revert
	gen       uint64      // bumped on every scenario command; a revert only applies to its own
	generator *Generator
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	log       *zap.Logger
}

// NewSensorSimulator wires the generator to the feed; consumer may be nil to disable remote control.
func NewSensorSimulator(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher,
	gen *Generator, station string, log *zap.Logger) *SensorSimulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SensorSimulator{
		station:   station,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		log:       log,
	}
}

// Start publishes one reading per interval until ctx is done.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration) {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go func() {
			if err := s.consumer.ConsumeMessage(ctx); err != nil {
				s.log.Error("control subscription failed", zap.Error(err))
			}
		}()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopTimer()
			return
		case <-t.C:
			s.publishOnce()
		}
	}
}

func (s *SensorSimulator) publishOnce() {
	r := s.generator.Next()
	s.log.Debug("publishing reading",
		zap.String("scenario", string(s.generator.Scenario())),
		zap.Float64("temperature", r.Temperature),
		zap.Float64("humidity", r.Humidity),
		zap.Float64("distance_cm", r.DistanceCM),
		zap.Float64("flow_rate_lpm", r.FlowRateLPM))
	if err := s.publisher.PublishMessage(r); err != nil {
		s.log.Warn("publish error", zap.Error(err))
	}
}

func (s *SensorSimulator) handleMessage(_ string, msg mqtt.Message) error {
	if !s.deduper.ShouldProcessPayload(msg.Payload()) {
		return nil
	}

	var cmd messages.ScenarioCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid ScenarioCommand: %w", err)
	}
	if cmd.StationID != "" && cmd.StationID != s.station {
		return nil
	}
	sc, err := ParseScenario(cmd.Scenario)
	if err != nil {
		return err
	}
	s.applyScenario(sc, cmd.Duration)
	return nil
}

func (s *SensorSimulator) applyScenario(sc Scenario, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	prev := s.generator.SetScenario(sc)
	s.log.Info("scenario changed",
		zap.String("station", s.station), zap.String("from", string(prev)),
		zap.String("to", string(sc)), zap.Duration("for", d))

	if d > 0 && prev != sc {
		gen := s.gen
		s.timer = time.AfterFunc(d, func() { s.revertScenario(gen, prev) })
	}
}

// revertScenario restores prev unless a newer command arrived after generation gen.
// A callback that fired while Stop was racing with it lands here and is discarded.
func (s *SensorSimulator) revertScenario(gen uint64, prev Scenario) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.generator.SetScenario(prev)
	s.timer = nil
	s.log.Info("scenario reverted", zap.String("station", s.station), zap.String("to", string(prev)))
	return true
}

func (s *SensorSimulator) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
