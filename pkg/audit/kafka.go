package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes audit entries to a kafka topic consumed by the audit
// service. Delivery failures are logged and swallowed.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Record(ctx context.Context, entry Entry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to marshal audit entry")
		return
	}

	msg := kafka.Message{
		Key:   []byte(entry.EntityId.String()),
		Value: body,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("action", string(entry.Action)).
			Msg("failed to publish audit entry")
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
