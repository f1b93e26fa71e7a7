package driven

import (
	"context"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// DocumentStore persists the document model of the local host.
// Backed by SQLite.
type DocumentStore interface {
	// CreateDocument stores a document and its layers in stacking order.
	// IDs are assigned by the store and returned on the copies.
	CreateDocument(ctx context.Context, doc domain.DocumentRef, layers []domain.Layer) (*domain.DocumentRef, []domain.Layer, error)

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id int64) (*domain.DocumentRef, error)

	// ActiveDocument returns the most recently opened document.
	// Returns domain.ErrNoDocument when the store is empty.
	ActiveDocument(ctx context.Context) (*domain.DocumentRef, error)

	// OpenDocument marks a document as the active one.
	OpenDocument(ctx context.Context, id int64) error

	// ListDocuments returns all documents ordered by ID.
	ListDocuments(ctx context.Context) ([]domain.DocumentRef, error)

	// DeleteDocument removes a document and its layers.
	DeleteDocument(ctx context.Context, id int64) error

	// GetLayers returns the layers of a document in stacking order.
	GetLayers(ctx context.Context, documentID int64) ([]domain.Layer, error)

	// GetLayer retrieves one layer. Returns domain.ErrNotFound if missing.
	GetLayer(ctx context.Context, documentID, layerID int64) (*domain.Layer, error)

	// SaveLayer updates the mutable fields of an existing layer.
	SaveLayer(ctx context.Context, documentID int64, layer domain.Layer) error
}
