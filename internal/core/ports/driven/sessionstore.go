package driven

import (
	"context"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// SessionStore keeps batch sessions for the lifetime of the process.
type SessionStore interface {
	// Save stores or replaces a session.
	Save(ctx context.Context, state *domain.BatchState) error

	// Get retrieves a session. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.BatchState, error)

	// List returns every session.
	List(ctx context.Context) ([]*domain.BatchState, error)

	// Delete removes a session.
	Delete(ctx context.Context, id string) error
}
