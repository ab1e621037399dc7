// Package notifier delivers flood alert events to the configured sinks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

// Notifier delivers one alert event.
type Notifier interface {
	Notify(ctx context.Context, evt messages.FloodAlertEvent) error
}

// NewEvent builds the alert event for a classified reading.
func NewEvent(r messages.SensorReading, c alert.Classification, at time.Time) messages.FloodAlertEvent {
	return messages.FloodAlertEvent{
		ID:        uuid.NewString(),
		StationID: r.StationID,
		Level:     string(c.Level),
		Title:     c.Level.Title(),
		Message:   c.Message,
		Color:     string(c.Color),
		Reading:   r,
		Timestamp: at.UTC(),
	}
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt messages.FloodAlertEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFactory returns a publisher bound to topic.
type PublisherFactory func(topic string) rabbitmq.IPublisher

// MQTTNotifier publishes the event as JSON on a per-station topic.
type MQTTNotifier struct {
	factory   PublisherFactory
	topicTmpl string
}

// NewMQTTNotifier uses topicTmpl with a {station} placeholder, e.g. event/floodAlert/{station}.
func NewMQTTNotifier(factory PublisherFactory, topicTmpl string) *MQTTNotifier {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = "event/floodAlert/{station}"
	}
	return &MQTTNotifier{factory: factory, topicTmpl: topicTmpl}
}

// Topic resolves the template for station; an empty station maps to "unknown".
func (n *MQTTNotifier) Topic(station string) string {
	station = strings.TrimSpace(station)
	if station == "" {
		station = "unknown"
	}
	return strings.ReplaceAll(n.topicTmpl, "{station}", station)
}

func (n *MQTTNotifier) Notify(_ context.Context, evt messages.FloodAlertEvent) error {
	topic := n.Topic(evt.StationID)
	if err := n.factory(topic).PublishMessage(evt); err != nil {
		return fmt.Errorf("mqtt notify %s: %w", topic, err)
	}
	return nil
}
