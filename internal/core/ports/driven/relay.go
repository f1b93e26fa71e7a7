package driven

import (
	"context"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// RelaySink persists relay events for an out-of-process observer.
// Emit returns where the event landed; failures wrap domain.ErrRelay.
type RelaySink interface {
	Emit(ctx context.Context, event domain.RelayEvent) (string, error)
}

// EventPublisher hands events to the side channel without waiting.
// Failures are only visible through Diagnostics, never to the caller.
type EventPublisher interface {
	Publish(event domain.RelayEvent)
	Diagnostics() domain.RelayDiagnostics
}
