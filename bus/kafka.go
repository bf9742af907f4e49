package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka is a Bus backed by a Kafka cluster, giving the ingestion and
// summarize pipelines durable at-least-once delivery across restarts.
type Kafka struct {
	brokers []string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
	closed  bool
}

// NewKafka returns a Bus publishing to the given brokers. Topics are
// auto-created on first publish.
func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, topic, key string, value []byte) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return ErrClosed
	}
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}
	return nil
}

// Consume reads from the earliest uncommitted offset so that jobs
// published while no consumer was running are not lost. Offsets are
// committed only after the handler succeeds.
func (k *Kafka) Consume(ctx context.Context, topic, group string, fn Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		reader.Close()
		return ErrClosed
	}
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return err
			}
			return fmt.Errorf("bus: fetch %s: %w", topic, err)
		}
		if err := fn(ctx, string(msg.Key), msg.Value); err != nil {
			// Leave the offset uncommitted; the message is
			// redelivered after a rebalance or restart.
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("bus: commit %s: %w", topic, err)
		}
	}
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	var errs []error
	if err := k.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range k.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
