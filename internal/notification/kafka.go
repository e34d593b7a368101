package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes notifications as JSON to a Kafka topic, keyed by user id so one user's
// notices stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier returns a notifier writing to topic. Returns nil when brokers or topic are
// empty; callers fall back to LogNotifier.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Notify writes n to the topic.
func (k *KafkaNotifier) Notify(ctx context.Context, n *Notification) error {
	if k == nil || k.writer == nil || n == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return k.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(n.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Handler processes one consumed notification.
type Handler func(ctx context.Context, n *Notification) error

// Consume reads notifications from r until ctx is cancelled, handing each to h. Undecodable
// messages and handler errors are logged and skipped.
func Consume(ctx context.Context, r *kafka.Reader, h Handler) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("notification: kafka read error: %v", err)
			continue
		}
		n, err := Decode(msg.Value)
		if err != nil {
			log.Printf("notification: skip offset %d: %v", msg.Offset, err)
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := h(hctx, n); err != nil {
			log.Printf("notification: handle %s for %s: %v", n.Kind, n.UserID, err)
		}
		cancel()
	}
}

// NewReader returns a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}
