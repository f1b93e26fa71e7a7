package relay

import (
	"context"
	"errors"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure Fanout implements the interface.
var _ driven.RelaySink = Fanout(nil)

// Fanout emits every event to all of its sinks in order.
//
// The returned location is the first successful one. Any sink failure is
// reported, joined with the others, even when another sink succeeded.
type Fanout []driven.RelaySink

// Emit writes the event to every sink.
func (f Fanout) Emit(ctx context.Context, event domain.RelayEvent) (string, error) {
	var (
		location string
		errs     []error
	)
	for _, sink := range f {
		path, err := sink.Emit(ctx, event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if location == "" {
			location = path
		}
	}
	return location, errors.Join(errs...)
}
