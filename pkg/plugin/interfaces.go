package plugin

import "context"

// KeyValueBasicInterface defines the basic KeyValue operations a driver may
// expose. No tweetpulse driver implements it: the Redis driver hands its
// *redis.Client to the domain packages through Client() instead.
type KeyValueBasicInterface interface {
	Set(key string, value []byte, ttlSeconds int64) error
	Get(key string) ([]byte, bool, error)
	Delete(key string) error
	Exists(key string) (bool, error)
}

// PubSubInterface defines publish/subscribe operations with context support.
// Implemented by the NATS driver, which is the opaque upstream connector,
// and by the Kafka driver behind the search-index mirror.
type PubSubInterface interface {
	Publish(ctx context.Context, topic string, payload []byte, metadata map[string]string) (string, error)
	Subscribe(ctx context.Context, topic string, subscriberID string) (<-chan *PubSubMessage, error)
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error
}

// PubSubMessage represents a message delivered over a PubSubInterface.
type PubSubMessage struct {
	Topic     string
	Payload   []byte
	Metadata  map[string]string
	MessageID string
	Timestamp int64
}
