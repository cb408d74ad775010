package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of a Kafka producer used by this package's callers
// (the trace outbox mirror in internal/persistence/databases).
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}
