package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed CSV or invalid arguments.
	// Fatal to the call, never to a running batch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFormat indicates the CSV header has no content column.
	ErrInvalidFormat = fmt.Errorf("%w: invalid format", ErrInvalidInput)

	// ErrEmptyDataset indicates no CSV row survived validation.
	ErrEmptyDataset = fmt.Errorf("%w: empty dataset", ErrInvalidInput)

	// Field and row errors. These are recorded on the row and the batch continues.

	// ErrInvalidTarget indicates a layer could not be resolved or is the wrong kind.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrMutation indicates every mutation strategy was exhausted.
	ErrMutation = errors.New("mutation failed")

	// ErrExport indicates every export strategy was exhausted.
	ErrExport = errors.New("export failed")

	// Setup errors. These abort the batch before (or instead of) the next row.

	// ErrLayoutConflict indicates an output folder name is taken by a file.
	ErrLayoutConflict = errors.New("layout conflict")

	// ErrFolderSetup indicates the output folder layout could not be provisioned.
	ErrFolderSetup = errors.New("folder setup failed")

	// ErrNoDocument indicates no document is open in the host.
	ErrNoDocument = errors.New("no open document")

	// ErrNoOutputFolder indicates the session has no output folder.
	ErrNoOutputFolder = errors.New("no output folder")

	// ErrNoRows indicates the session has no CSV rows loaded.
	ErrNoRows = errors.New("no csv data loaded")

	// ErrRowsExhausted indicates the resume cursor is past the last row.
	ErrRowsExhausted = errors.New("all rows processed")

	// ErrBatchInProgress indicates a batch is already running for the session.
	ErrBatchInProgress = errors.New("batch in progress")

	// ErrRelay indicates a relay event could not be persisted.
	// Never fatal; logged and counted only.
	ErrRelay = errors.New("relay failed")
)

// MutationError reports a field whose mutation strategies were all exhausted.
type MutationError struct {
	// Target is the layer name the mutation was addressed to.
	Target string

	// Strategies lists the attempted strategy names in order.
	Strategies []string

	// Err is the aggregated attempt error.
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutate %s: tried [%s]: %v", e.Target, strings.Join(e.Strategies, ", "), e.Err)
}

// Is reports ErrMutation so callers can match without a type assertion.
func (e *MutationError) Is(target error) bool { return target == ErrMutation }

func (e *MutationError) Unwrap() error { return e.Err }

// ExportError reports an export whose strategies were all exhausted.
type ExportError struct {
	// Path is the requested destination.
	Path string

	// Format is the requested container format.
	Format ExportFormat

	// Strategies lists the attempted strategy names in order.
	Strategies []string

	// Err is the aggregated attempt error.
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s as %s: tried [%s]: %v",
		e.Path, e.Format, strings.Join(e.Strategies, ", "), e.Err)
}

// Is reports ErrExport so callers can match without a type assertion.
func (e *ExportError) Is(target error) bool { return target == ErrExport }

func (e *ExportError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for row results and relay events.
type ErrorKind string

// Error kinds recorded on rows.
const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindInvalidTarget ErrorKind = "invalid_target"
	KindMutation      ErrorKind = "mutation"
	KindExport        ErrorKind = "export"
	KindFolderSetup   ErrorKind = "folder_setup"
	KindRelay         ErrorKind = "relay"
	KindCancelled     ErrorKind = "cancelled"
	KindUnknown       ErrorKind = "unknown"
)

// KindOf maps an error onto the taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTarget):
		return KindInvalidTarget
	case errors.Is(err, ErrMutation):
		return KindMutation
	case errors.Is(err, ErrExport):
		return KindExport
	case errors.Is(err, ErrLayoutConflict), errors.Is(err, ErrFolderSetup):
		return KindFolderSetup
	case errors.Is(err, ErrRelay):
		return KindRelay
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}
