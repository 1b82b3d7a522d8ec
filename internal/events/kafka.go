package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// PublishCheckoutCompleted keys the message by user, or by session token for
// guests, so events of one shopper stay ordered on one partition.
func (p *KafkaPublisher) PublishCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal checkout event failed: %w", err)
	}

	key := evt.UserID
	if key == "" {
		key = evt.SessionToken
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCheckoutCompleted)},
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
