package enrich

import (
	"context"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tweetpulse/enrich")

// minScoredChars is the cleaned-text length below which sentiment scoring
// is skipped in favor of a fixed neutral result, per spec §4.3.
const minScoredChars = 10

// Enricher derives language, cleaned text, and sentiment for a raw message.
type Enricher struct {
	language  LanguageDetector
	sentiment SentimentBackend
}

// New builds an Enricher from its two pluggable stages.
func New(language LanguageDetector, sentiment SentimentBackend) *Enricher {
	return &Enricher{language: language, sentiment: sentiment}
}

// Enrich cleans msg's content, detects its language, and scores its
// sentiment, short-circuiting to a neutral result for non-English or very
// short text instead of invoking the sentiment backend at all.
func (e *Enricher) Enrich(ctx context.Context, msg model.RawMessage) (model.EnrichedRecord, error) {
	ctx, span := tracer.Start(ctx, "enrich.Enrich")
	defer span.End()

	cleaned := Clean(msg.Content)

	lang := msg.Language
	if lang == "" {
		lang = e.language.Detect(cleaned)
	}

	var result SentimentResult
	if lang != "en" || len(cleaned) < minScoredChars {
		result = SentimentResult{Sentiment: "neutral", Confidence: 0.5}
	} else {
		scored, err := e.sentiment.Score(ctx, cleaned)
		if err != nil {
			return model.EnrichedRecord{}, err
		}
		result = scored
	}

	rec := model.EnrichedRecord{
		RawMessage:  msg,
		CleanedText: cleaned,
		Sentiment:   model.Sentiment(result.Sentiment),
		Confidence:  result.Confidence,
		EnrichedAt:  time.Now(),
	}
	rec.RawMessage.Language = lang

	return rec, nil
}
