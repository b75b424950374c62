package enrich

import "log/slog"

// NewFromConfig selects the sentiment backend per spec §4.3's
// "deterministic from configuration" rule, with the exact precedence
// recovered from the original enrichment factory: an explicit mode wins,
// then the deployment environment, then lite as the safe default.
//
//   - mode == "lite" or "full": used directly.
//   - mode == "": environment == "production" or "staging" selects full,
//     anything else (including empty) selects lite.
func NewFromConfig(mode, environment, inferenceURL string) *Enricher {
	useFull := false

	switch mode {
	case "full":
		useFull = true
	case "lite":
		useFull = false
	default:
		switch environment {
		case "production", "staging":
			useFull = true
		default:
			useFull = false
		}
	}

	var backend SentimentBackend
	if useFull {
		backend = NewTransformerBackend(inferenceURL)
		slog.Info("enrichment backend selected", "backend", "full", "mode", mode, "environment", environment)
	} else {
		backend = NewLexicalBackend()
		slog.Info("enrichment backend selected", "backend", "lite", "mode", mode, "environment", environment)
	}

	return New(NewWhatlangDetector(), backend)
}
