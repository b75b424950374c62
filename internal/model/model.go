// Package model holds the types that flow through the ingestion pipeline:
// the raw message read off the stream, the enriched record derived from it,
// and the row shape the batch writer upserts into Postgres.
package model

import (
	"strconv"
	"time"
)

// Sentiment is the three-way classification produced by the enricher.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// EngagementCounters mirrors the optional public metrics a source message
// may carry. Absent counters default to zero.
type EngagementCounters struct {
	RetweetCount   int64
	LikeCount      int64
	ReplyCount     int64
	QuoteCount     int64
	BookmarkCount  int64
	ImpressionCount int64
}

// RawMessage is the payload read from a single stream entry, decoded from
// its wire fields. ID is the upstream message identifier used for
// deduplication; it is not assigned by the pipeline.
type RawMessage struct {
	ID          string
	Content     string
	AuthorID    string
	CreatedAt   time.Time
	Language    string
	Engagement  EngagementCounters
}

// EnrichedRecord is a RawMessage augmented with the enricher's output. It is
// the unit handed to storage and the batch writer.
type EnrichedRecord struct {
	RawMessage
	CleanedText string
	Sentiment   Sentiment
	Confidence  float64
	EnrichedAt  time.Time
}

// TweetRow is the exact relational row the batch writer upserts, matching
// the original system's ORM model column-for-column.
type TweetRow struct {
	ID              string
	Content         string
	AuthorID        string
	CreatedAt       time.Time
	Sentiment       Sentiment
	Confidence      float64
	RetweetCount    int64
	LikeCount       int64
	ReplyCount      int64
	QuoteCount      int64
	BookmarkCount   int64
	ImpressionCount int64
}

// ToFields flattens an EnrichedRecord into the wire shape the search-index
// mirror publishes, mirroring the same field names a raw stream entry uses.
func (r EnrichedRecord) ToFields() map[string]string {
	return map[string]string{
		"id":         r.ID,
		"content":    r.CleanedText,
		"author_id":  r.AuthorID,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339),
		"language":   r.Language,
		"sentiment":  string(r.Sentiment),
		"confidence": strconv.FormatFloat(r.Confidence, 'f', -1, 64),
	}
}

// ToRow projects an EnrichedRecord into the row the batch writer persists.
// Content is truncated to 280 runes, matching the relational column's limit.
func (r EnrichedRecord) ToRow() TweetRow {
	content := r.Content
	if runes := []rune(content); len(runes) > 280 {
		content = string(runes[:280])
	}

	return TweetRow{
		ID:              r.ID,
		Content:         content,
		AuthorID:        r.AuthorID,
		CreatedAt:       r.CreatedAt,
		Sentiment:       r.Sentiment,
		Confidence:      r.Confidence,
		RetweetCount:    r.Engagement.RetweetCount,
		LikeCount:       r.Engagement.LikeCount,
		ReplyCount:      r.Engagement.ReplyCount,
		QuoteCount:      r.Engagement.QuoteCount,
		BookmarkCount:   r.Engagement.BookmarkCount,
		ImpressionCount: r.Engagement.ImpressionCount,
	}
}
