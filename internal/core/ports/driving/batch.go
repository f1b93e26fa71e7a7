package driving

import (
	"context"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

// BatchController runs CSV rows against the host document.
type BatchController interface {
	// LoadRows parses CSV text into the session and resets its cursor.
	LoadRows(state *domain.BatchState, raw string) error

	// Restart resets the session cursor to the first row.
	Restart(state *domain.BatchState) error

	// Run processes rows from the cursor until done or stopped.
	Run(ctx context.Context, state *domain.BatchState) (*domain.RunSummary, error)

	// Step processes the single row at the cursor.
	Step(ctx context.Context, state *domain.BatchState) (*domain.RowResult, error)

	// Stop asks a running batch to halt before its next row.
	Stop(state *domain.BatchState)

	// Status returns a snapshot of the session.
	Status(state *domain.BatchState) BatchStatus
}

// BatchStatus is a snapshot of a batch session.
type BatchStatus struct {
	// Session identifies the batch session.
	Session string

	// State is the controller state.
	State domain.RunState

	// Running is true while a run or step is in flight.
	Running bool

	// Current is the resume cursor.
	Current int

	// Total is the number of loaded rows.
	Total int

	// Processed, FilesSaved and Errors come from the last run.
	Processed  int
	FilesSaved int
	Errors     int

	// Message is the last status line.
	Message string
}

// ProgressFunc receives status updates while a batch runs.
type ProgressFunc func(BatchStatus)
