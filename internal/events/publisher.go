package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

const DefaultStateTopic = "refund.state.changed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is the Kafka notification sink. Messages are keyed by refund id
// so every event of one refund lands on the same partition in order.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers, topic string) *Publisher {
	if topic == "" {
		topic = DefaultStateTopic
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *Publisher) Publish(ctx context.Context, event models.RefundEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal refund event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RefundID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "transition", Value: []byte(event.Transition)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish refund event %s v%d: %w", event.RefundID, event.Version, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
