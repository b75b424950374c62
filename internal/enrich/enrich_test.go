package enrich

import (
	"context"
	"testing"

	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips url", "check this out https://example.com/x great", "check this out great"},
		{"strips mention", "hey @someone how are you", "hey how are you"},
		{"strips hashtag", "loving this #weather today", "loving this today"},
		{"collapses whitespace", "too    much   space", "too much space"},
		{"combo", "@bob this is #great check http://x.co now", "this is check now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestWhatlangDetector(t *testing.T) {
	d := NewWhatlangDetector()

	require.Equal(t, "en", d.Detect("this is a great day and I am happy about it"))
	require.Equal(t, "unknown", d.Detect("xyz"))
	require.Equal(t, "fr", d.Detect("bonjour le monde comment allez vous"))
}

func TestLexicalBackend_Thresholds(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	pos, err := b.Score(ctx, "this is amazing and wonderful, I love it")
	require.NoError(t, err)
	require.Equal(t, "positive", pos.Sentiment)
	require.Greater(t, pos.Confidence, 0.0)

	neg, err := b.Score(ctx, "this is terrible and awful, I hate it")
	require.NoError(t, err)
	require.Equal(t, "negative", neg.Sentiment)

	neu, err := b.Score(ctx, "the meeting is scheduled for tuesday afternoon")
	require.NoError(t, err)
	require.Equal(t, "neutral", neu.Sentiment)
}

func TestLexicalBackend_Negation(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	result, err := b.Score(ctx, "this is not good at all")
	require.NoError(t, err)
	require.NotEqual(t, "positive", result.Sentiment)
}

func TestEnricher_ShortTextIsNeutral(t *testing.T) {
	e := New(NewWhatlangDetector(), NewLexicalBackend())

	rec, err := e.Enrich(context.Background(), model.RawMessage{ID: "1", Content: "great", Language: "en"})
	require.NoError(t, err)
	require.Equal(t, model.SentimentNeutral, rec.Sentiment)
	require.Equal(t, 0.5, rec.Confidence)
}

func TestEnricher_NonEnglishIsNeutral(t *testing.T) {
	e := New(NewWhatlangDetector(), NewLexicalBackend())

	rec, err := e.Enrich(context.Background(), model.RawMessage{
		ID:       "1",
		Content:  "je suis tres content aujourd'hui vraiment",
		Language: "fr",
	})
	require.NoError(t, err)
	require.Equal(t, model.SentimentNeutral, rec.Sentiment)
}

func TestEnricher_EnglishScoresSentiment(t *testing.T) {
	e := New(NewWhatlangDetector(), NewLexicalBackend())

	rec, err := e.Enrich(context.Background(), model.RawMessage{
		ID:       "1",
		Content:  "this new phone is absolutely amazing and wonderful",
		Language: "en",
	})
	require.NoError(t, err)
	require.Equal(t, model.SentimentPositive, rec.Sentiment)
	require.NotEmpty(t, rec.CleanedText)
}

func TestBatchEnricher_PreservesOrder(t *testing.T) {
	be := NewBatchEnricher(New(NewWhatlangDetector(), NewLexicalBackend()), 4)

	msgs := []model.RawMessage{
		{ID: "1", Content: "this is wonderful and amazing", Language: "en"},
		{ID: "2", Content: "this is terrible and awful", Language: "en"},
		{ID: "3", Content: "meeting at noon", Language: "en"},
	}

	out, err := be.EnrichAll(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "1", out[0].ID)
	require.Equal(t, "2", out[1].ID)
	require.Equal(t, "3", out[2].ID)
}
