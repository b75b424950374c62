package stream

import (
	"context"
	"fmt"
	"time"

	kafkadriver "github.com/jrepp/tweetpulse/pkg/drivers/kafka"
)

// KafkaStreamStore adapts a KafkaPlugin to the StreamStore interface so the
// pipeline can publish to the optional search-indexing mirror through the
// same interface as the primary Redis stream, showing that StreamStore is
// not a Redis-specific abstraction. Only Add is usable: Read returns an
// error, so Run cannot consume from this store.
//
// Kafka has no notion of a pending/unacked entry list the way Redis
// Streams does, so Ack is a no-op: offsets are committed on delivery (see
// KafkaPlugin.consumeSubscription), and EnsureGroup is a no-op since the
// consumer group is created implicitly on Subscribe.
type KafkaStreamStore struct {
	driver       *kafkadriver.KafkaPlugin
	topic        string
	subscriberID string
}

// NewKafkaStreamStore builds a StreamStore over an already-initialized
// Kafka driver, mirroring entries onto topic.
func NewKafkaStreamStore(driver *kafkadriver.KafkaPlugin, topic string) *KafkaStreamStore {
	return &KafkaStreamStore{driver: driver, topic: topic, subscriberID: "search-index"}
}

// EnsureGroup is a no-op: Kafka consumer groups are created on Subscribe.
func (k *KafkaStreamStore) EnsureGroup(ctx context.Context, startID string) error {
	return nil
}

// Read is unused for the mirror today: entries are relayed synchronously
// from Add via Publish, not pulled back for reprocessing. It returns an
// error so a future mirror consumer doesn't silently no-op.
func (k *KafkaStreamStore) Read(ctx context.Context, consumerName string, count int64, block time.Duration) ([]Entry, error) {
	return nil, fmt.Errorf("stream: kafka mirror store does not support Read, it is a write-only fan-out target")
}

// Ack is a no-op: Kafka offsets are committed on delivery, not on Ack.
func (k *KafkaStreamStore) Ack(ctx context.Context, id string) error {
	return nil
}

// Add publishes fields as a flattened key=value payload onto the search
// index topic. The pipeline passes each enriched record's ToFields here.
func (k *KafkaStreamStore) Add(ctx context.Context, fields map[string]string) (string, error) {
	payload := encodeFields(fields)
	return k.driver.Publish(ctx, k.topic, payload, nil)
}

func encodeFields(fields map[string]string) []byte {
	out := make([]byte, 0, 64)
	for key, value := range fields {
		out = append(out, key...)
		out = append(out, '=')
		out = append(out, value...)
		out = append(out, '\n')
	}
	return out
}

var _ StreamStore = (*KafkaStreamStore)(nil)
