package databases

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"agentengine/internal/persistence"
)

// kafkaWriter is satisfied by *kafka.Writer; narrowed for testability.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewOutboxMirroredTraceStore wraps a TraceStore so that every completed
// trace (Update calls that leave status != running) is also published to a
// Kafka topic for external analytics consumers. The mirror is best-effort:
// a publish failure is logged, never returned to the caller, since engine
// correctness never depends on it succeeding.
func NewOutboxMirroredTraceStore(store persistence.TraceStore, writer kafkaWriter, topic string) persistence.TraceStore {
	if writer == nil || topic == "" {
		return store
	}
	return &outboxTraceStore{TraceStore: store, writer: writer, topic: topic}
}

type outboxTraceStore struct {
	persistence.TraceStore
	writer kafkaWriter
	topic  string
}

func (s *outboxTraceStore) Update(ctx context.Context, t persistence.Trace) error {
	if err := s.TraceStore.Update(ctx, t); err != nil {
		return err
	}
	if t.Status == persistence.TraceStatusRunning {
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", t.ID).Msg("trace_outbox_marshal_failed")
		return nil
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Topic: s.topic, Key: []byte(t.ID), Value: payload}); err != nil {
		log.Warn().Err(err).Str("trace_id", t.ID).Msg("trace_outbox_publish_failed")
	}
	return nil
}
