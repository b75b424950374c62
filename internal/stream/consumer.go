package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
)

const (
	readCount = 10
	readBlock = time.Second
)

// Processor handles one decoded message. Returning an error leaves the
// stream entry unacknowledged so it is redelivered to the consumer group.
type Processor func(ctx context.Context, msg model.RawMessage) error

// ParseRawMessage decodes a stream entry's string fields into a RawMessage.
// created_at is parsed as RFC3339; unparsable or absent values leave
// CreatedAt zero rather than failing the whole message, since a timestamp
// is not required to deduplicate or enrich.
func ParseRawMessage(id string, fields map[string]string) (model.RawMessage, error) {
	content, ok := fields["content"]
	if !ok {
		return model.RawMessage{}, fmt.Errorf("stream: entry %s missing content field", id)
	}

	msg := model.RawMessage{
		ID:       firstNonEmpty(fields["id"], id),
		Content:  content,
		AuthorID: fields["author_id"],
		Language: fields["language"],
	}

	if ts, ok := fields["created_at"]; ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.CreatedAt = parsed
		} else {
			slog.Warn("stream: unparsable created_at, leaving zero", "id", msg.ID, "value", ts)
		}
	}

	msg.Engagement = model.EngagementCounters{
		RetweetCount:    parseInt64(fields["retweet_count"]),
		LikeCount:       parseInt64(fields["like_count"]),
		ReplyCount:      parseInt64(fields["reply_count"]),
		QuoteCount:      parseInt64(fields["quote_count"]),
		BookmarkCount:   parseInt64(fields["bookmark_count"]),
		ImpressionCount: parseInt64(fields["impression_count"]),
	}

	return msg, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Run reads, decodes, and processes entries from store under consumerName
// until ctx is canceled. A processing error is a transient failure: it is
// logged and leaves the entry unacknowledged for redelivery. A decode error
// means the entry is a poison message, malformed in a way retrying will
// never fix, so it is logged and acknowledged anyway, dropping it rather
// than letting it accumulate in the pending list forever.
func Run(ctx context.Context, store StreamStore, consumerName string, process Processor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := store.Read(ctx, consumerName, readCount, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("stream: read failed", "consumer", consumerName, "error", err)
			continue
		}

		for _, entry := range entries {
			msg, err := ParseRawMessage(entry.ID, entry.Fields)
			if err != nil {
				slog.Error("stream: poison message, acking and dropping", "consumer", consumerName, "entry_id", entry.ID, "error", err)
				if ackErr := store.Ack(ctx, entry.ID); ackErr != nil {
					slog.Error("stream: ack failed for poison message", "consumer", consumerName, "entry_id", entry.ID, "error", ackErr)
				}
				continue
			}

			if err := process(ctx, msg); err != nil {
				slog.Error("stream: processing failed, leaving unacked", "consumer", consumerName, "entry_id", entry.ID, "error", err)
				continue
			}

			if err := store.Ack(ctx, entry.ID); err != nil {
				slog.Error("stream: ack failed", "consumer", consumerName, "entry_id", entry.ID, "error", err)
			}
		}
	}
}
