package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/BearBump/FieldSync/internal/broker/messages"
	"github.com/BearBump/FieldSync/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

// PublishApplied serializes an applied-operation record onto the telemetry
// topic, keyed by operation id.
func (p *Producer) PublishApplied(ctx context.Context, topic string, op models.QueuedOperation) error {
	msg := messages.OperationApplied{
		OperationID: op.ID,
		Kind:        op.Kind,
		TargetID:    op.TargetID,
		Payload:     op.Payload,
		EnqueuedAt:  op.CreatedAt,
		Attempts:    op.Attempts,
		AppliedAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal applied message")
	}
	return p.Publish(ctx, topic, []byte(op.ID), b)
}
