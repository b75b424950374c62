package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jrepp/tweetpulse/internal/stream"
	natsdriver "github.com/jrepp/tweetpulse/pkg/drivers/nats"
	"github.com/jrepp/tweetpulse/pkg/plugin"
)

// natsPayload is the wire shape tweets arrive in on the subject: a JSON
// object mirroring model.RawMessage, with engagement counters flattened to
// the top level since that's how the upstream publisher emits them.
type natsPayload struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	AuthorID        string `json:"author_id"`
	CreatedAt       string `json:"created_at"`
	Language        string `json:"language"`
	RetweetCount    int64  `json:"retweet_count"`
	LikeCount       int64  `json:"like_count"`
	ReplyCount      int64  `json:"reply_count"`
	QuoteCount      int64  `json:"quote_count"`
	BookmarkCount   int64  `json:"bookmark_count"`
	ImpressionCount int64  `json:"impression_count"`
}

func (p natsPayload) toFields() map[string]string {
	fields := map[string]string{
		"id":               p.ID,
		"content":          p.Content,
		"author_id":        p.AuthorID,
		"language":         p.Language,
		"retweet_count":    strconv.FormatInt(p.RetweetCount, 10),
		"like_count":       strconv.FormatInt(p.LikeCount, 10),
		"reply_count":      strconv.FormatInt(p.ReplyCount, 10),
		"quote_count":      strconv.FormatInt(p.QuoteCount, 10),
		"bookmark_count":   strconv.FormatInt(p.BookmarkCount, 10),
		"impression_count": strconv.FormatInt(p.ImpressionCount, 10),
	}
	if p.CreatedAt != "" {
		fields["created_at"] = p.CreatedAt
	} else {
		fields["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return fields
}

// NATSConnector subscribes to a NATS subject and relays each decoded tweet
// onto a StreamStore, acting as the bridge between the external upstream
// and the ingestion consumer group.
type NATSConnector struct {
	driver       *natsdriver.Driver
	store        stream.StreamStore
	subject      string
	subscriberID string
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewNATSConnector builds a connector over an already-initialized NATS
// driver (see pkg/drivers/nats.Driver.Initialize).
func NewNATSConnector(driver *natsdriver.Driver, store stream.StreamStore, subject string) *NATSConnector {
	return &NATSConnector{
		driver:       driver,
		store:        store,
		subject:      subject,
		subscriberID: "tweetpulse-ingest",
		done:         make(chan struct{}),
	}
}

// Start subscribes to the subject and relays messages until Stop is called.
func (c *NATSConnector) Start(ctx context.Context) error {
	relayCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	msgChan, err := c.driver.Subscribe(relayCtx, c.subject, c.subscriberID)
	if err != nil {
		cancel()
		return fmt.Errorf("connector: subscribe to %s: %w", c.subject, err)
	}

	go c.relay(relayCtx, msgChan)

	return nil
}

func (c *NATSConnector) relay(ctx context.Context, msgChan <-chan *plugin.PubSubMessage) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}

			var payload natsPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				slog.Error("connector: failed to decode upstream message, dropping", "subject", c.subject, "error", err)
				continue
			}

			if _, err := c.store.Add(ctx, payload.toFields()); err != nil {
				slog.Error("connector: failed to relay message onto stream", "subject", c.subject, "error", err)
			}
		}
	}
}

// Stop unsubscribes and waits for the relay loop to exit.
func (c *NATSConnector) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.driver.Unsubscribe(ctx, c.subject, c.subscriberID)
}

var _ Connector = (*NATSConnector)(nil)
