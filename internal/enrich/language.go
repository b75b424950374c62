package enrich

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// LanguageDetector identifies the dominant language of a text.
type LanguageDetector interface {
	Detect(text string) string
}

// WhatlangDetector identifies the dominant language of a text using
// whatlanggo's n-gram statistical classifier, the Go port of whatlang-rs
// and this pack's closest analogue to the original implementation's
// langdetect dependency. It returns ISO 639-1 codes ("en", "fr", "es", ...)
// or "unknown" when the text is too short or the script is undetermined.
type WhatlangDetector struct {
	// MinWords is the minimum token count required to attempt detection at
	// all; shorter texts are always "unknown".
	MinWords int
}

// NewWhatlangDetector returns a detector with the package's default threshold.
func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{MinWords: 3}
}

// Detect returns an ISO 639-1 language code, or "unknown".
func (w *WhatlangDetector) Detect(text string) string {
	if len(strings.Fields(text)) < w.MinWords {
		return "unknown"
	}

	info := whatlanggo.Detect(text)
	if info.Lang == whatlanggo.Und {
		return "unknown"
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return "unknown"
	}
	return code
}
