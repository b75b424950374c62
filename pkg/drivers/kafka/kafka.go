// Package kafka implements the optional search-indexing mirror: a Kafka
// backend driver used to fan enriched tweets out to a downstream search
// index in parallel with the primary Redis Stream consumer group. It
// exists to show that internal/stream's StreamStore abstraction is
// transport-agnostic, not just a Redis concept; see
// internal/stream/kafka_store.go for the StreamStore adapter built on it.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/jrepp/tweetpulse/pkg/plugin"
)

const version = "0.1.0"

// subscription tracks a topic subscription with its message channel
type subscription struct {
	topic        string
	subscriberID string
	msgChan      chan *plugin.PubSubMessage
	consumer     *kafka.Consumer
	cancelFunc   context.CancelFunc
}

// KafkaPlugin manages a Kafka producer/consumer pair used to mirror the
// ingest stream into a search-indexing topic.
type KafkaPlugin struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	config   *KafkaConfig
	subs     map[string]*subscription // key: "topic:subscriberID"
	subsMu   sync.RWMutex
}

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string

	SASLMechanism string // "SCRAM-SHA-512"
	SASLUsername  string
	SASLPassword  string

	Compression string // "snappy", "gzip", "lz4", "zstd"
	Acks        string // "all", "1", "0"

	AutoOffsetReset string // "earliest", "latest"
}

// New creates a new Kafka driver instance
func New() *KafkaPlugin {
	return &KafkaPlugin{
		subs: make(map[string]*subscription),
	}
}

func (p *KafkaPlugin) Name() string    { return "kafka" }
func (p *KafkaPlugin) Version() string { return version }

// Initialize creates the Kafka producer and consumer.
func (p *KafkaPlugin) Initialize(ctx context.Context, config *plugin.Config) error {
	slog.Info("initializing kafka plugin", "version", version)

	var kafkaConfig KafkaConfig
	if err := config.GetBackendConfig(&kafkaConfig); err != nil {
		return fmt.Errorf("failed to parse kafka config: %w", err)
	}
	p.config = &kafkaConfig

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" && len(kafkaConfig.Brokers) > 0 {
		brokers = kafkaConfig.Brokers[0]
	}
	if brokers == "" {
		return fmt.Errorf("KAFKA_BROKERS not configured")
	}

	if user := os.Getenv("KAFKA_SASL_USERNAME"); user != "" {
		kafkaConfig.SASLUsername = user
	}
	if pass := os.Getenv("KAFKA_SASL_PASSWORD"); pass != "" {
		kafkaConfig.SASLPassword = pass
	}

	producerConfig := kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"compression.type":  kafkaConfig.Compression,
		"acks":              kafkaConfig.Acks,
		"client.id":         fmt.Sprintf("tweetpulse-kafka-producer-%s", version),
	}

	if kafkaConfig.SASLUsername != "" && kafkaConfig.SASLPassword != "" {
		producerConfig["security.protocol"] = "SASL_SSL"
		producerConfig["sasl.mechanism"] = kafkaConfig.SASLMechanism
		producerConfig["sasl.username"] = kafkaConfig.SASLUsername
		producerConfig["sasl.password"] = kafkaConfig.SASLPassword
		slog.Info("kafka SASL authentication configured", "mechanism", kafkaConfig.SASLMechanism)
	}

	producer, err := kafka.NewProducer(&producerConfig)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	p.producer = producer

	consumerConfig := kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           kafkaConfig.ConsumerGroup,
		"auto.offset.reset":  kafkaConfig.AutoOffsetReset,
		"enable.auto.commit": false,
		"client.id":          fmt.Sprintf("tweetpulse-kafka-consumer-%s", version),
	}

	if kafkaConfig.SASLUsername != "" && kafkaConfig.SASLPassword != "" {
		consumerConfig["security.protocol"] = "SASL_SSL"
		consumerConfig["sasl.mechanism"] = kafkaConfig.SASLMechanism
		consumerConfig["sasl.username"] = kafkaConfig.SASLUsername
		consumerConfig["sasl.password"] = kafkaConfig.SASLPassword
	}

	consumer, err := kafka.NewConsumer(&consumerConfig)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	p.consumer = consumer

	if err := consumer.Subscribe(kafkaConfig.Topic, nil); err != nil {
		producer.Close()
		consumer.Close()
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	slog.Info("kafka plugin initialized",
		"brokers", brokers,
		"topic", kafkaConfig.Topic,
		"consumer_group", kafkaConfig.ConsumerGroup,
		"compression", kafkaConfig.Compression)

	return nil
}

// Start begins serving requests
func (p *KafkaPlugin) Start(ctx context.Context) error {
	slog.Info("kafka plugin started")

	go p.handleProducerEvents(ctx)

	<-ctx.Done()

	slog.Info("kafka plugin stopping")
	return nil
}

// Stop gracefully shuts down the plugin
func (p *KafkaPlugin) Stop(ctx context.Context) error {
	slog.Info("stopping kafka plugin")

	p.subsMu.Lock()
	for key, sub := range p.subs {
		if sub.cancelFunc != nil {
			sub.cancelFunc()
		}
		if sub.consumer != nil {
			sub.consumer.Close()
		}
		close(sub.msgChan)
		delete(p.subs, key)
	}
	p.subsMu.Unlock()

	if p.consumer != nil {
		p.consumer.Close()
		slog.Info("closed kafka consumer")
	}

	if p.producer != nil {
		remaining := p.producer.Flush(5000)
		if remaining > 0 {
			slog.Warn("not all messages flushed", "remaining", remaining)
		}
		p.producer.Close()
		slog.Info("closed kafka producer")
	}

	return nil
}

// Health reports the plugin health status
func (p *KafkaPlugin) Health(ctx context.Context) (*plugin.HealthStatus, error) {
	if p.producer == nil || p.consumer == nil {
		return &plugin.HealthStatus{
			Status:  plugin.HealthUnhealthy,
			Message: "kafka clients not initialized",
		}, nil
	}

	producerLen := p.producer.Len()
	if producerLen > 10000 {
		return &plugin.HealthStatus{
			Status:  plugin.HealthDegraded,
			Message: "producer queue backing up",
			Details: map[string]string{
				"queue_length": fmt.Sprintf("%d", producerLen),
			},
		}, nil
	}

	return &plugin.HealthStatus{
		Status:  plugin.HealthHealthy,
		Message: "kafka healthy",
		Details: map[string]string{
			"producer_queue": fmt.Sprintf("%d", producerLen),
			"topic":          p.config.Topic,
		},
	}, nil
}

func (p *KafkaPlugin) handleProducerEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.producer.Events():
			if ev, ok := e.(*kafka.Message); ok {
				if ev.TopicPartition.Error != nil {
					slog.Error("message delivery failed",
						"error", ev.TopicPartition.Error,
						"topic", *ev.TopicPartition.Topic,
						"partition", ev.TopicPartition.Partition)
				} else {
					slog.Debug("message delivered",
						"topic", *ev.TopicPartition.Topic,
						"partition", ev.TopicPartition.Partition,
						"offset", ev.TopicPartition.Offset)
				}
			}
		}
	}
}

// Publish sends a message to a Kafka topic. Implements plugin.PubSubInterface.
func (p *KafkaPlugin) Publish(ctx context.Context, topic string, payload []byte, metadata map[string]string) (string, error) {
	if p.producer == nil {
		return "", fmt.Errorf("kafka producer not initialized")
	}

	messageID := uuid.New().String()

	headers := make([]kafka.Header, 0, len(metadata)+1)
	headers = append(headers, kafka.Header{Key: "message_id", Value: []byte(messageID)})
	for k, v := range metadata {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
		Headers:        headers,
	}

	if err := p.producer.Produce(message, nil); err != nil {
		return "", fmt.Errorf("failed to produce message: %w", err)
	}

	slog.Debug("published message", "topic", topic, "message_id", messageID, "size", len(payload))
	return messageID, nil
}

// Subscribe subscribes to a Kafka topic and returns a channel of messages.
// Implements plugin.PubSubInterface.
func (p *KafkaPlugin) Subscribe(ctx context.Context, topic string, subscriberID string) (<-chan *plugin.PubSubMessage, error) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" && len(p.config.Brokers) > 0 {
		brokers = p.config.Brokers[0]
	}
	if brokers == "" {
		return nil, fmt.Errorf("KAFKA_BROKERS not configured")
	}

	consumerConfig := kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           fmt.Sprintf("%s-%s", p.config.ConsumerGroup, subscriberID),
		"auto.offset.reset":  p.config.AutoOffsetReset,
		"enable.auto.commit": false,
		"client.id":          fmt.Sprintf("tweetpulse-kafka-sub-%s-%s", topic, subscriberID),
	}

	if p.config.SASLUsername != "" && p.config.SASLPassword != "" {
		consumerConfig["security.protocol"] = "SASL_SSL"
		consumerConfig["sasl.mechanism"] = p.config.SASLMechanism
		consumerConfig["sasl.username"] = p.config.SASLUsername
		consumerConfig["sasl.password"] = p.config.SASLPassword
	}

	consumer, err := kafka.NewConsumer(&consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	msgChan := make(chan *plugin.PubSubMessage, 100)
	subCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{topic: topic, subscriberID: subscriberID, msgChan: msgChan, consumer: consumer, cancelFunc: cancel}

	p.subsMu.Lock()
	key := fmt.Sprintf("%s:%s", topic, subscriberID)
	p.subs[key] = sub
	p.subsMu.Unlock()

	go p.consumeSubscription(subCtx, sub)

	slog.Info("subscribed to topic", "topic", topic, "subscriber_id", subscriberID)
	return msgChan, nil
}

func (p *KafkaPlugin) consumeSubscription(ctx context.Context, sub *subscription) {
	defer slog.Info("subscription consumer stopped", "topic", sub.topic, "subscriber_id", sub.subscriberID)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := sub.consumer.ReadMessage(1 * time.Second)
			if err != nil {
				if kafkaErr, ok := err.(kafka.Error); ok && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}
				slog.Error("consumer error", "error", err, "topic", sub.topic)
				continue
			}

			metadata := make(map[string]string)
			messageID := ""
			for _, header := range msg.Headers {
				if header.Key == "message_id" {
					messageID = string(header.Value)
				} else {
					metadata[header.Key] = string(header.Value)
				}
			}
			if messageID == "" {
				messageID = fmt.Sprintf("%s-%d-%d", *msg.TopicPartition.Topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset)
			}

			select {
			case sub.msgChan <- &plugin.PubSubMessage{
				Topic:     *msg.TopicPartition.Topic,
				Payload:   msg.Value,
				Metadata:  metadata,
				MessageID: messageID,
				Timestamp: msg.Timestamp.Unix(),
			}:
				if _, err := sub.consumer.CommitMessage(msg); err != nil {
					slog.Error("failed to commit offset", "error", err)
				}
			case <-ctx.Done():
				return
			default:
				slog.Warn("message dropped (channel full)", "topic", sub.topic, "subscriber_id", sub.subscriberID)
			}
		}
	}
}

// Unsubscribe unsubscribes from a Kafka topic. Implements plugin.PubSubInterface.
func (p *KafkaPlugin) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	key := fmt.Sprintf("%s:%s", topic, subscriberID)
	sub, exists := p.subs[key]
	if !exists {
		return fmt.Errorf("no subscription found for topic %s with subscriber %s", topic, subscriberID)
	}

	if sub.cancelFunc != nil {
		sub.cancelFunc()
	}
	if sub.consumer != nil {
		sub.consumer.Close()
	}
	close(sub.msgChan)
	delete(p.subs, key)

	slog.Info("unsubscribed from topic", "topic", topic, "subscriber_id", subscriberID)
	return nil
}

var (
	_ plugin.Plugin          = (*KafkaPlugin)(nil)
	_ plugin.PubSubInterface = (*KafkaPlugin)(nil)
)
