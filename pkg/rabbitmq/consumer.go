package rabbitmq

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches to a handler until the context ends.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer subscribes to a single topic filter.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	log     *zap.Logger
}

// NewConsumer builds a consumer on topic; handler may be injected later with SetHandler.
func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, log: log}
}

func (c *Consumer) SetHandler(handler Handler) { c.handler = handler }

// Topic returns the subscribed filter.
func (c *Consumer) Topic() string { return c.topic }

// ConsumeMessage subscribes and blocks until ctx is cancelled, then unsubscribes.
// It returns an error only when the subscription itself fails.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.log.Warn("no handler set", zap.String("topic", c.topic))
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			c.log.Warn("error handling message",
				zap.String("topic", message.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, token.Error())
	}
	c.log.Info("subscribed", zap.String("topic", c.topic), zap.Uint8("qos", c.qos))

	<-ctx.Done()

	if c.client.IsConnectionOpen() {
		c.client.Unsubscribe(c.topic).Wait()
	}
	return nil
}
