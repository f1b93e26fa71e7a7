package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure Host implements the interface.
var _ driven.Host = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithTempDir sets the scratch folder returned by TempFolder.
func WithTempDir(dir string) Option {
	return func(h *Host) { h.tempDir = dir }
}

// WithIgnoredDirectWrites makes SetFontSize report success without changing
// the layer, as some editors do for read-only property handles.
func WithIgnoredDirectWrites() Option {
	return func(h *Host) { h.ignoreDirect = true }
}

// WithCommandFilter installs a hook that may reject a command before it runs.
func WithCommandFilter(filter func(domain.Command) error) Option {
	return func(h *Host) { h.filter = filter }
}

// Host implements the DocumentAPI, CommandExecutor and Storage ports.
type Host struct {
	docs    driven.DocumentStore
	tempDir string

	ignoreDirect bool
	filter       func(domain.Command) error

	// mu guards grants and selected.
	mu       sync.Mutex
	grants   map[string]string
	selected int64
}

// New creates a host over a document store.
func New(docs driven.DocumentStore, opts ...Option) *Host {
	h := &Host{
		docs:    docs,
		tempDir: filepath.Join(os.TempDir(), "layerforge", "tmp"),
		grants:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ActiveDocument returns the most recently opened document.
func (h *Host) ActiveDocument(ctx context.Context) (*domain.DocumentRef, error) {
	return h.docs.ActiveDocument(ctx)
}

// Layers lists the layers of a document in stacking order.
func (h *Host) Layers(ctx context.Context, doc domain.DocumentRef) ([]domain.Layer, error) {
	return h.docs.GetLayers(ctx, doc.ID)
}

// Layer reads one layer by ID.
func (h *Host) Layer(ctx context.Context, doc domain.DocumentRef, id int64) (*domain.Layer, error) {
	return h.docs.GetLayer(ctx, doc.ID, id)
}

// SetFontSize writes the size directly on the layer.
func (h *Host) SetFontSize(ctx context.Context, doc domain.DocumentRef, id int64, size float64) error {
	layer, err := h.docs.GetLayer(ctx, doc.ID, id)
	if err != nil {
		return err
	}
	if !layer.IsText() {
		return fmt.Errorf("%w: layer %q has no text style", domain.ErrInvalidTarget, layer.Name)
	}
	if h.ignoreDirect {
		return nil
	}
	layer.FontSize = size
	return h.docs.SaveLayer(ctx, doc.ID, *layer)
}

// Selected returns the ID of the last selected layer, or 0.
func (h *Host) Selected() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}
