package rabbitmq

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// IPublisher publishes to a fixed topic.
type IPublisher interface {
	PublishMessage(message interface{}) error
	Close()
}

// Publisher publishes on one topic of the shared client.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *zap.Logger
}

func NewPublisher(client mqtt.Client, topic string, qos byte, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, qos: qos, log: log}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// PublishMessage sends strings and byte slices verbatim and JSON-encodes anything else.
func (p *Publisher) PublishMessage(message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", p.topic, err)
		}
		payload = b
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, token.Error())
	}

	p.log.Debug("message published", zap.String("topic", p.topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects the shared client; only call it from the owner of the connection.
func (p *Publisher) Close() {
	CloseRabbitMQConn(p.client, p.log)
}
