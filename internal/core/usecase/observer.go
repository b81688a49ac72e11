package usecase

import "time"

// SearchObserver receives per-stage search telemetry.
type SearchObserver interface {
	ObserveSearch(outcome string, results int, duration time.Duration)
	ObserveStrategy(strategy string, hits int, err error, duration time.Duration)
	ObserveFallback(stage string)
}

type noopObserver struct{}

func (noopObserver) ObserveSearch(string, int, time.Duration)          {}
func (noopObserver) ObserveStrategy(string, int, error, time.Duration) {}
func (noopObserver) ObserveFallback(string)                            {}

const (
	searchOutcomeOK          = "ok"
	searchOutcomeEmpty       = "empty"
	searchOutcomeUnavailable = "unavailable"
	searchOutcomeError       = "error"
)

const (
	fallbackRerank         = "rerank"
	fallbackDocumentGroup  = "document_group"
	fallbackThreadContext  = "thread_context"
	fallbackSurroundingCtx = "surrounding_context"
)
