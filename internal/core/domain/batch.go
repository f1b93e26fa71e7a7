package domain

import (
	"sync/atomic"
	"time"
)

// RunState is the batch controller state machine.
type RunState string

// Run states. A run moves Idle -> Initializing -> Processing and ends in
// Stopped, Completed or Failed.
const (
	RunIdle         RunState = "idle"
	RunInitializing RunState = "initializing"
	RunProcessing   RunState = "processing"
	RunStopped      RunState = "stopped"
	RunCompleted    RunState = "completed"
	RunFailed       RunState = "failed"
)

// IsTerminal reports whether the run has ended.
func (s RunState) IsTerminal() bool {
	return s == RunStopped || s == RunCompleted || s == RunFailed
}

// StopToken is a cooperative cancellation flag.
// It is polled at row boundaries only; setting it never interrupts a row.
type StopToken struct {
	requested atomic.Bool
}

// Request asks the running batch to stop before its next row.
func (t *StopToken) Request() { t.requested.Store(true) }

// Requested reports whether a stop was requested.
func (t *StopToken) Requested() bool { return t.requested.Load() }

// Reset clears a previous request.
func (t *StopToken) Reset() { t.requested.Store(false) }

// BatchState is the per-session control state of a batch.
// It lives in memory only and is mutated by the batch controller.
type BatchState struct {
	// ID identifies the session.
	ID string

	// ProcessedCount is the resume cursor into Rows.
	ProcessedCount int

	// Processing is true while a run or step is in flight.
	Processing bool

	// Rows is the parsed CSV dataset.
	Rows []Row

	// OutputFolder is the operator-chosen base output folder.
	OutputFolder *FolderRef

	// Document is the host document the batch edits.
	Document *DocumentRef

	// Stop is the cancellation token for the current run.
	Stop StopToken

	// State is the controller state.
	State RunState

	// Message is the last status line.
	Message string

	// LastSummary holds the counters of the most recent run.
	LastSummary *RunSummary
}

// NewBatchState creates an idle session.
func NewBatchState(id string) *BatchState {
	return &BatchState{ID: id, State: RunIdle}
}

// Remaining returns how many rows are left after the cursor.
func (s *BatchState) Remaining() int {
	if s.ProcessedCount >= len(s.Rows) {
		return 0
	}
	return len(s.Rows) - s.ProcessedCount
}

// FieldError records a failure on one target field or export.
type FieldError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Target  string    `json:"target,omitempty"`
}

// ExportedFile records one successful export.
type ExportedFile struct {
	Format   ExportFormat `json:"format"`
	Path     string       `json:"path"`
	Strategy string       `json:"strategy"`
}

// RowResult is the outcome of processing one row.
type RowResult struct {
	// Row is the 0-based position in the session's rows.
	Row int `json:"row"`

	// Line is the source CSV line.
	Line int `json:"line"`

	// Success is true when at least one field was mutated and every format exported.
	Success bool `json:"success"`

	// FieldsMutated counts fields whose mutation succeeded.
	FieldsMutated int `json:"fields_mutated"`

	// Errors lists field and export failures.
	Errors []FieldError `json:"errors,omitempty"`

	// Exported lists the files written for this row.
	Exported []ExportedFile `json:"exported,omitempty"`

	// Elapsed is the wall time spent on the row.
	Elapsed time.Duration `json:"elapsed"`
}

// Formats returns the formats that exported successfully.
func (r *RowResult) Formats() []ExportFormat {
	out := make([]ExportFormat, 0, len(r.Exported))
	for _, e := range r.Exported {
		out = append(out, e.Format)
	}
	return out
}

// RunSummary aggregates row results for a run.
type RunSummary struct {
	Session    string        `json:"session"`
	State      RunState      `json:"state"`
	StartRow   int           `json:"start_row"`
	EndRow     int           `json:"end_row"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	FilesSaved int           `json:"files_saved"`
	Errors     int           `json:"errors"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        string        `json:"error,omitempty"`
}

// Add folds a row result into the summary.
func (s *RunSummary) Add(r *RowResult) {
	s.Processed++
	s.FilesSaved += len(r.Exported)
	s.Errors += len(r.Errors)
}
