// Package nats implements the tweetpulse backend driver for the opaque
// external upstream (spec §6): a NATS connection that the ingestion
// connector subscribes to for incoming tweet messages. It exposes the
// Plugin lifecycle (Initialize/Start/Stop/Health) and a context-aware
// PubSubInterface, trimmed from the wider driver framework down to the
// publish/subscribe surface tweetpulse actually uses.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrepp/tweetpulse/pkg/plugin"
	"github.com/nats-io/nats.go"
)

// Driver implements a NATS-backed pub/sub connection as a backend driver.
type Driver struct {
	name    string
	version string
	conn    *nats.Conn
	config  *Config
	subs    map[string]*nats.Subscription
	subsMu  sync.RWMutex
}

// Config holds NATS-specific configuration.
type Config struct {
	URL            string        `yaml:"url"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	Timeout        time.Duration `yaml:"timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxPendingMsgs int           `yaml:"max_pending_msgs"`
}

// New creates a new NATS driver instance.
func New() *Driver {
	return &Driver{
		name:    "nats",
		version: "0.1.0",
		subs:    make(map[string]*nats.Subscription),
	}
}

func (n *Driver) Name() string    { return n.name }
func (n *Driver) Version() string { return n.version }

// Initialize prepares the driver with configuration and connects to NATS.
func (n *Driver) Initialize(ctx context.Context, config *plugin.Config) error {
	var backendConfig Config
	if err := config.GetBackendConfig(&backendConfig); err != nil {
		return fmt.Errorf("failed to parse backend config: %w", err)
	}

	if backendConfig.URL == "" {
		backendConfig.URL = nats.DefaultURL
	}
	if backendConfig.MaxReconnects == 0 {
		backendConfig.MaxReconnects = 10
	}
	if backendConfig.ReconnectWait == 0 {
		backendConfig.ReconnectWait = 2 * time.Second
	}
	if backendConfig.Timeout == 0 {
		backendConfig.Timeout = 5 * time.Second
	}
	if backendConfig.PingInterval == 0 {
		backendConfig.PingInterval = 20 * time.Second
	}
	if backendConfig.MaxPendingMsgs == 0 {
		backendConfig.MaxPendingMsgs = 65536
	}

	n.config = &backendConfig
	n.name = config.Plugin.Name
	n.version = config.Plugin.Version

	opts := []nats.Option{
		nats.MaxReconnects(backendConfig.MaxReconnects),
		nats.ReconnectWait(backendConfig.ReconnectWait),
		nats.Timeout(backendConfig.Timeout),
		nats.PingInterval(backendConfig.PingInterval),
		nats.MaxPingsOutstanding(3),
	}

	conn, err := nats.Connect(backendConfig.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.conn = conn

	return nil
}

// Start is a no-op: the connection is already live from Initialize.
func (n *Driver) Start(ctx context.Context) error { return nil }

// Stop unsubscribes everything and drains the connection.
func (n *Driver) Stop(ctx context.Context) error {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()

	for topic, sub := range n.subs {
		_ = sub.Unsubscribe()
		delete(n.subs, topic)
	}

	if n.conn != nil {
		_ = n.conn.Drain()
		n.conn.Close()
	}

	return nil
}

// Health reports the underlying NATS connection status.
func (n *Driver) Health(ctx context.Context) (*plugin.HealthStatus, error) {
	if n.conn == nil {
		return &plugin.HealthStatus{Status: plugin.HealthUnhealthy, Message: "NATS connection not established"}, nil
	}

	switch n.conn.Status() {
	case nats.CONNECTED:
		n.subsMu.RLock()
		subCount := len(n.subs)
		n.subsMu.RUnlock()

		stats := n.conn.Stats()
		return &plugin.HealthStatus{
			Status:  plugin.HealthHealthy,
			Message: fmt.Sprintf("connected to %s", n.conn.ConnectedUrl()),
			Details: map[string]string{
				"subscriptions": fmt.Sprintf("%d", subCount),
				"in_msgs":       fmt.Sprintf("%d", stats.InMsgs),
				"out_msgs":      fmt.Sprintf("%d", stats.OutMsgs),
			},
		}, nil
	case nats.RECONNECTING:
		return &plugin.HealthStatus{Status: plugin.HealthDegraded, Message: "reconnecting to NATS"}, nil
	default:
		return &plugin.HealthStatus{Status: plugin.HealthUnhealthy, Message: fmt.Sprintf("connection status: %v", n.conn.Status())}, nil
	}
}

// Publish publishes a message to a subject.
func (n *Driver) Publish(ctx context.Context, subject string, payload []byte, metadata map[string]string) (string, error) {
	if n.conn == nil {
		return "", fmt.Errorf("NATS connection not established")
	}

	if err := n.conn.Publish(subject, payload); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	if err := n.conn.FlushTimeout(n.config.Timeout); err != nil {
		return "", fmt.Errorf("failed to flush after publish: %w", err)
	}

	return fmt.Sprintf("%s-%d", subject, time.Now().UnixNano()), nil
}

// Subscribe subscribes to a subject and returns a channel of messages.
func (n *Driver) Subscribe(ctx context.Context, subject string, subscriberID string) (<-chan *plugin.PubSubMessage, error) {
	if n.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	msgChan := make(chan *plugin.PubSubMessage, n.config.MaxPendingMsgs)

	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case msgChan <- &plugin.PubSubMessage{
			Topic:     msg.Subject,
			Payload:   msg.Data,
			MessageID: fmt.Sprintf("%s-%d", msg.Subject, time.Now().UnixNano()),
			Timestamp: time.Now().Unix(),
		}:
		case <-ctx.Done():
		default:
		}
	})
	if err != nil {
		close(msgChan)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	n.subsMu.Lock()
	n.subs[subject+":"+subscriberID] = sub
	n.subsMu.Unlock()

	return msgChan, nil
}

// Unsubscribe cancels a prior Subscribe.
func (n *Driver) Unsubscribe(ctx context.Context, subject string, subscriberID string) error {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()

	key := subject + ":" + subscriberID
	sub, ok := n.subs[key]
	if !ok {
		return fmt.Errorf("no subscription for %s", key)
	}

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}
	delete(n.subs, key)
	return nil
}

var (
	_ plugin.Plugin          = (*Driver)(nil)
	_ plugin.PubSubInterface = (*Driver)(nil)
)
