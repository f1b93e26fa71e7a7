package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/core/ports/driving"
	"github.com/custodia-labs/layerforge/internal/csvloader"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// Ensure BatchController implements the interface.
var _ driving.BatchController = (*BatchController)(nil)

// FileName returns the output file name for the 0-based row position.
// Rows are numbered from 1 in file names.
func FileName(prefix string, row int, format domain.ExportFormat) string {
	return fmt.Sprintf("%s_%04d%s", prefix, row+1, format.Extension())
}

// BatchOption configures a BatchController.
type BatchOption func(*BatchController)

// WithProgress registers a callback receiving status updates.
func WithProgress(fn driving.ProgressFunc) BatchOption {
	return func(c *BatchController) { c.progress = fn }
}

// WithDocuments lets the controller bind the host's active document to a
// session that has none.
func WithDocuments(docs driven.DocumentAPI) BatchOption {
	return func(c *BatchController) { c.docs = docs }
}

// BatchController runs CSV rows against a host document.
//
// A session is processed by one goroutine at a time. The only field another
// goroutine may touch is the session's stop token.
type BatchController struct {
	loader   *csvloader.Loader
	mutator  *LayerMutator
	exporter *DocumentExporter
	folders  *FolderProvisioner
	events   driven.EventPublisher
	docs     driven.DocumentAPI
	csv      domain.CSVSettings
	export   domain.ExportSettings
	progress driving.ProgressFunc
}

// NewBatchController creates a batch controller.
// The events publisher is optional.
func NewBatchController(
	mutator *LayerMutator,
	exporter *DocumentExporter,
	folders *FolderProvisioner,
	events driven.EventPublisher,
	settings domain.Settings,
	opts ...BatchOption,
) *BatchController {
	if len(settings.Export.Formats) == 0 {
		settings.Export.Formats = domain.DefaultSettings().Export.Formats
	}
	c := &BatchController{
		loader:   csvloader.New(csvloader.OptionsFrom(settings.CSV)),
		mutator:  mutator,
		exporter: exporter,
		folders:  folders,
		events:   events,
		csv:      settings.CSV,
		export:   settings.Export,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadRows parses CSV text into the session and resets its cursor.
func (c *BatchController) LoadRows(state *domain.BatchState, raw string) error {
	if state.Processing {
		return domain.ErrBatchInProgress
	}
	rows, err := c.loader.Parse(raw)
	if err != nil {
		return fmt.Errorf("load csv: %w", err)
	}
	state.Rows = rows
	state.ProcessedCount = 0
	state.State = domain.RunIdle
	state.LastSummary = nil
	state.Message = fmt.Sprintf("Loaded %d rows", len(rows))
	c.report(state)
	return nil
}

// Restart resets the session cursor to the first row.
func (c *BatchController) Restart(state *domain.BatchState) error {
	if state.Processing {
		return domain.ErrBatchInProgress
	}
	state.ProcessedCount = 0
	state.State = domain.RunIdle
	state.Message = "Restarted at row 1"
	c.report(state)
	return nil
}

// Stop asks a running batch to halt before its next row.
func (c *BatchController) Stop(state *domain.BatchState) {
	state.Stop.Request()
	logger.Info("stop requested for session %s", state.ID)
}

// Status returns a snapshot of the session.
func (c *BatchController) Status(state *domain.BatchState) driving.BatchStatus {
	status := driving.BatchStatus{
		Session: state.ID,
		State:   state.State,
		Running: state.Processing,
		Current: state.ProcessedCount,
		Total:   len(state.Rows),
		Message: state.Message,
	}
	if s := state.LastSummary; s != nil {
		status.Processed = s.Processed
		status.FilesSaved = s.FilesSaved
		status.Errors = s.Errors
	}
	return status
}

// Run processes rows from the cursor until the rows are exhausted, a stop is
// requested or a setup failure occurs.
//
// Setup problems abort before any row runs. Row-level errors are recorded on
// the row result and never halt the batch. A stop leaves the cursor at the
// row that was about to run, so a rerun repeats no finished row but may
// repeat the interrupted one.
//
//nolint:gocognit // Sequential state machine over rows
func (c *BatchController) Run(ctx context.Context, state *domain.BatchState) (*domain.RunSummary, error) {
	if err := c.begin(ctx, state); err != nil {
		return nil, err
	}
	defer func() { state.Processing = false }()

	started := time.Now()
	total := len(state.Rows)
	summary := &domain.RunSummary{
		Session:  state.ID,
		StartRow: state.ProcessedCount,
		Total:    total,
	}
	state.LastSummary = summary
	state.State = domain.RunProcessing
	c.mutator.ResetCache()

	logger.Section(fmt.Sprintf("Batch %s", state.ID))
	logger.Info("processing rows %d-%d of %d", state.ProcessedCount+1, total, total)
	c.publish(state, domain.RelayEvent{
		Type:    domain.EventRunStarted,
		Row:     domain.RowNumber(state.ProcessedCount),
		Message: fmt.Sprintf("starting at row %d of %d", state.ProcessedCount+1, total),
		Data:    map[string]any{"total": total, "formats": c.export.Formats},
	})

	var runErr error
	finalState := domain.RunCompleted
	for state.ProcessedCount < total {
		i := state.ProcessedCount
		if state.Stop.Requested() || ctx.Err() != nil {
			finalState = domain.RunStopped
			runErr = ctx.Err()
			break
		}

		state.Message = fmt.Sprintf("Row %d/%d", i+1, total)
		c.report(state)

		result, err := c.processRow(ctx, state, i)
		if result != nil {
			summary.Add(result)
		}
		if err != nil {
			if ctx.Err() != nil {
				finalState = domain.RunStopped
				runErr = ctx.Err()
			} else {
				finalState = domain.RunFailed
				runErr = err
			}
			break
		}
		state.ProcessedCount = i + 1
	}

	summary.State = finalState
	summary.EndRow = state.ProcessedCount
	summary.Elapsed = time.Since(started)
	if runErr != nil {
		summary.Err = runErr.Error()
	}
	state.State = finalState
	state.Message = summaryMessage(summary)

	logger.Info("%s", state.Message)
	c.publish(state, domain.RelayEvent{
		Type:    domain.EventRunFinished,
		Row:     domain.RowNumber(state.ProcessedCount),
		Message: state.Message,
		Data: map[string]any{
			"state":       string(finalState),
			"processed":   summary.Processed,
			"files_saved": summary.FilesSaved,
			"errors":      summary.Errors,
			"elapsed_ms":  summary.Elapsed.Milliseconds(),
		},
	})
	c.report(state)

	if finalState == domain.RunFailed {
		return summary, fmt.Errorf("row %d: %w", state.ProcessedCount+1, runErr)
	}
	return summary, runErr
}

// Step processes exactly the row at the cursor and advances it by one.
func (c *BatchController) Step(ctx context.Context, state *domain.BatchState) (*domain.RowResult, error) {
	if err := c.begin(ctx, state); err != nil {
		return nil, err
	}
	defer func() { state.Processing = false }()

	i := state.ProcessedCount
	state.State = domain.RunProcessing
	state.Message = fmt.Sprintf("Row %d/%d", i+1, len(state.Rows))
	c.report(state)

	result, err := c.processRow(ctx, state, i)
	summary := &domain.RunSummary{Session: state.ID, StartRow: i, Total: len(state.Rows)}
	if result != nil {
		summary.Add(result)
		summary.Elapsed = result.Elapsed
	}
	state.LastSummary = summary
	if err != nil {
		state.State = domain.RunFailed
		summary.State = domain.RunFailed
		summary.EndRow = i
		summary.Err = err.Error()
		state.Message = summaryMessage(summary)
		c.report(state)
		return result, err
	}

	state.ProcessedCount = i + 1
	summary.EndRow = state.ProcessedCount
	if state.Remaining() == 0 {
		state.State = domain.RunCompleted
	} else {
		state.State = domain.RunIdle
	}
	summary.State = state.State
	state.Message = fmt.Sprintf("Stepped row %d/%d: %d files, %d errors",
		i+1, len(state.Rows), len(result.Exported), len(result.Errors))
	c.report(state)
	return result, nil
}

// begin runs the setup checks and provisions the output layout.
// On success the session is marked as processing.
func (c *BatchController) begin(ctx context.Context, state *domain.BatchState) error {
	if state.Processing {
		return domain.ErrBatchInProgress
	}
	state.Processing = true
	state.Stop.Reset()
	state.State = domain.RunInitializing
	state.Message = "Initializing"
	c.report(state)

	if err := c.setup(ctx, state); err != nil {
		state.Processing = false
		state.State = domain.RunFailed
		state.Message = fmt.Sprintf("Setup failed: %v", err)
		logger.Warn("%s", state.Message)
		c.publish(state, domain.RelayEvent{
			Type:    domain.EventError,
			Message: err.Error(),
			Data:    map[string]any{"kind": string(domain.KindOf(err)), "phase": "setup"},
		})
		c.report(state)
		return err
	}
	return nil
}

func (c *BatchController) setup(ctx context.Context, state *domain.BatchState) error {
	if len(state.Rows) == 0 {
		return domain.ErrNoRows
	}
	if state.ProcessedCount >= len(state.Rows) {
		return domain.ErrRowsExhausted
	}
	if state.OutputFolder == nil {
		return domain.ErrNoOutputFolder
	}
	if state.Document == nil {
		if c.docs == nil {
			return domain.ErrNoDocument
		}
		doc, err := c.docs.ActiveDocument(ctx)
		if err != nil {
			return fmt.Errorf("active document: %w", err)
		}
		state.Document = doc
	}
	_, err := c.ensureLayout(ctx, state)
	return err
}

func (c *BatchController) ensureLayout(ctx context.Context, state *domain.BatchState) (map[domain.ExportFormat]domain.FolderRef, error) {
	byFormat := LayoutNames(c.export.FolderPrefix, c.export.Formats)
	names := make([]string, 0, len(c.export.Formats))
	for _, f := range c.export.Formats {
		names = append(names, byFormat[f])
	}
	folders, err := c.folders.EnsureLayout(ctx, *state.OutputFolder, names)
	if err != nil {
		return nil, err
	}
	layout := make(map[domain.ExportFormat]domain.FolderRef, len(byFormat))
	for f, name := range byFormat {
		layout[f] = folders[name]
	}
	return layout, nil
}

// processRow applies the row's fields and exports the result.
// A returned error is fatal to the batch; everything else lands on the result.
//
//nolint:gocognit // Field loop plus export loop with per-item recovery
func (c *BatchController) processRow(
	ctx context.Context,
	state *domain.BatchState,
	i int,
) (*domain.RowResult, error) {
	started := time.Now()
	row := state.Rows[i]
	doc := *state.Document
	result := &domain.RowResult{Row: i, Line: row.Line}

	for _, field := range row.TargetFields(c.csv.ContentPrefix, c.csv.ModifierPrefix) {
		if field.IsEmpty() {
			continue
		}
		var content *string
		if field.HasContent() {
			text := field.Content
			content = &text
		}
		var modifier *float64
		if size, ok := field.ModifierValue(); ok {
			modifier = &size
		}

		_, err := c.mutator.ApplyField(ctx, domain.TargetRef{Document: doc, Index: field.Index}, content, modifier)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			target := fmt.Sprintf("%s%d", c.csv.ContentPrefix, field.Index)
			logger.Warn("row %d: %s: %v", i+1, target, err)
			result.Errors = append(result.Errors, domain.FieldError{
				Kind:    domain.KindOf(err),
				Message: err.Error(),
				Target:  target,
			})
			continue
		}
		result.FieldsMutated++
	}

	if result.FieldsMutated == 0 {
		logger.Warn("row %d: no field applied, skipping export", i+1)
	} else {
		// The layout can disappear between rows; re-ensuring is idempotent.
		layout, err := c.ensureLayout(ctx, state)
		if err != nil {
			return nil, err
		}

		prefix := c.export.FilePrefix
		if prefix == "" {
			prefix = doc.BaseName()
		}
		for _, format := range c.export.Formats {
			dest := filepath.Join(layout[format].Path, FileName(prefix, i, format))
			file, err := c.exporter.ExportFile(ctx, doc, dest, format)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				result.Errors = append(result.Errors, domain.FieldError{
					Kind:    domain.KindOf(err),
					Message: err.Error(),
					Target:  string(format),
				})
				continue
			}
			result.Exported = append(result.Exported, *file)
			c.publish(state, domain.RelayEvent{
				Type:    domain.EventExported,
				Row:     domain.RowNumber(i),
				Target:  file.Path,
				Message: fmt.Sprintf("exported %s", filepath.Base(file.Path)),
				Data:    map[string]any{"format": string(format), "strategy": file.Strategy},
			})
		}
	}

	result.Success = result.FieldsMutated > 0 && len(result.Exported) == len(c.export.Formats)
	result.Elapsed = time.Since(started)

	for _, fe := range result.Errors {
		c.publish(state, domain.RelayEvent{
			Type:    domain.EventError,
			Row:     domain.RowNumber(i),
			Target:  fe.Target,
			Message: fe.Message,
			Data:    map[string]any{"kind": string(fe.Kind)},
		})
	}
	c.publish(state, domain.RelayEvent{
		Type:    domain.EventRowCompleted,
		Row:     domain.RowNumber(i),
		Message: fmt.Sprintf("row %d: %d fields, %d files, %d errors", i+1, result.FieldsMutated, len(result.Exported), len(result.Errors)),
		Data: map[string]any{
			"line":           row.Line,
			"success":        result.Success,
			"fields_mutated": result.FieldsMutated,
			"exported":       result.Exported,
			"errors":         len(result.Errors),
			"elapsed_ms":     result.Elapsed.Milliseconds(),
		},
	})
	return result, nil
}

func (c *BatchController) publish(state *domain.BatchState, event domain.RelayEvent) {
	if c.events == nil {
		return
	}
	event.Session = state.ID
	c.events.Publish(event)
}

func (c *BatchController) report(state *domain.BatchState) {
	if c.progress != nil {
		c.progress(c.Status(state))
	}
}

func summaryMessage(s *domain.RunSummary) string {
	var head string
	switch s.State {
	case domain.RunCompleted:
		head = "Completed"
	case domain.RunStopped:
		head = fmt.Sprintf("Stopped at row %d/%d", s.EndRow+1, s.Total)
	case domain.RunFailed:
		head = fmt.Sprintf("Aborted at row %d/%d", s.EndRow+1, s.Total)
	default:
		head = string(s.State)
	}
	return fmt.Sprintf("%s: %d rows processed, %d files saved, %d errors", head, s.Processed, s.FilesSaved, s.Errors)
}

// IsSetupError reports whether err aborted a run before any row.
func IsSetupError(err error) bool {
	return errors.Is(err, domain.ErrNoRows) ||
		errors.Is(err, domain.ErrNoOutputFolder) ||
		errors.Is(err, domain.ErrNoDocument) ||
		errors.Is(err, domain.ErrBatchInProgress) ||
		errors.Is(err, domain.ErrRowsExhausted) ||
		errors.Is(err, domain.ErrLayoutConflict) ||
		errors.Is(err, domain.ErrFolderSetup)
}
