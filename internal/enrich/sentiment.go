package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"
)

// SentimentResult is a classification plus the confidence the backend
// assigns it, matching spec §4.3's sentiment contract.
type SentimentResult struct {
	Sentiment  string // "positive", "negative", or "neutral"
	Confidence float64
}

// SentimentBackend scores already-cleaned English text. Callers are
// responsible for the neutrality short-circuit (non-English or very short
// text); a backend is only ever asked to score text worth scoring.
type SentimentBackend interface {
	Score(ctx context.Context, cleanedText string) (SentimentResult, error)
}

// lexiconWeights is a small valence lexicon in the spirit of VADER: each
// word maps to a valence in roughly [-4, 4]. It is intentionally compact,
// covering common social-media sentiment vocabulary rather than VADER's
// full ~7500-entry lexicon.
var lexiconWeights = map[string]float64{
	"good": 1.9, "great": 3.1, "love": 3.2, "loved": 3.0, "amazing": 3.4,
	"awesome": 3.1, "happy": 2.7, "excellent": 3.3, "best": 3.0, "wonderful": 3.2,
	"fantastic": 3.2, "nice": 1.8, "thanks": 1.6, "thank": 1.6, "win": 2.1,
	"beautiful": 2.9, "perfect": 3.0, "glad": 2.2, "excited": 2.5, "fun": 2.0,
	"bad": -2.1, "hate": -3.0, "hated": -2.9, "terrible": -3.2, "awful": -3.1,
	"worst": -3.0, "sad": -2.0, "angry": -2.4, "disappointed": -2.3, "horrible": -3.2,
	"broken": -1.6, "fail": -2.0, "failed": -2.1, "sucks": -2.5, "annoying": -2.0,
	"disgusting": -2.9, "worse": -2.3, "ugly": -1.9, "boring": -1.7, "sick": -1.6,
}

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "n't": {}, "cannot": {}, "without": {},
}

const negationDampening = -0.74

// LexicalBackend scores text by summing valence over its tokens, applying
// simple negation flipping, then normalizing with VADER's compound-score
// formula: sum / sqrt(sum^2 + alpha).
type LexicalBackend struct {
	alpha float64
}

// NewLexicalBackend returns a backend using VADER's standard normalization constant.
func NewLexicalBackend() *LexicalBackend {
	return &LexicalBackend{alpha: 15.0}
}

// Score implements SentimentBackend.
func (l *LexicalBackend) Score(_ context.Context, cleanedText string) (SentimentResult, error) {
	words := strings.Fields(strings.ToLower(cleanedText))

	sum := 0.0
	negateNext := false
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'")
		if _, isNegator := negators[w]; isNegator {
			negateNext = true
			continue
		}
		if weight, ok := lexiconWeights[w]; ok {
			if negateNext {
				weight *= negationDampening
			}
			sum += weight
			negateNext = false
		}
	}

	compound := sum / math.Sqrt(sum*sum+l.alpha)

	return interpretCompound(compound), nil
}

// interpretCompound applies spec §4.3's exact thresholds: compound > 0.05
// is positive, < -0.05 is negative, otherwise neutral. Confidence is the
// magnitude of the compound score for a non-neutral verdict, or
// 1 - magnitude for a neutral one (a compound near zero is a confident
// neutral; one sitting just inside the band is a weak one).
func interpretCompound(compound float64) SentimentResult {
	switch {
	case compound > 0.05:
		return SentimentResult{Sentiment: "positive", Confidence: math.Abs(compound)}
	case compound < -0.05:
		return SentimentResult{Sentiment: "negative", Confidence: math.Abs(compound)}
	default:
		return SentimentResult{Sentiment: "neutral", Confidence: 1 - math.Abs(compound)}
	}
}

// TransformerBackend delegates scoring to a remote inference endpoint,
// standing in for the original's embedded transformer classifier (the
// pack carries no ML runtime binding). Any failure — timeout, non-2xx,
// malformed body — degrades to a neutral result rather than propagating,
// matching spec §4.3's error contract for the enrichment step.
type TransformerBackend struct {
	url    string
	client *http.Client
}

// NewTransformerBackend builds a backend that POSTs cleaned text to url
// and expects a JSON body of {"sentiment": "...", "confidence": 0.0}.
func NewTransformerBackend(url string) *TransformerBackend {
	return &TransformerBackend{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

type inferenceRequest struct {
	Text string `json:"text"`
}

type inferenceResponse struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Score implements SentimentBackend.
func (t *TransformerBackend) Score(ctx context.Context, cleanedText string) (SentimentResult, error) {
	neutral := SentimentResult{Sentiment: "neutral", Confidence: 0.5}

	body, err := json.Marshal(inferenceRequest{Text: cleanedText})
	if err != nil {
		return neutral, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return neutral, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return neutral, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return neutral, nil
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return neutral, nil
	}

	switch out.Sentiment {
	case "positive", "negative", "neutral":
	default:
		return neutral, nil
	}

	return SentimentResult{Sentiment: out.Sentiment, Confidence: out.Confidence}, nil
}

var _ SentimentBackend = (*LexicalBackend)(nil)
var _ SentimentBackend = (*TransformerBackend)(nil)
