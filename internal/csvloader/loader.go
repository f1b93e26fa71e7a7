// Package csvloader parses delimited text into batch rows.
//
// The first line is the header. Columns named {content-prefix}<N> carry the
// text for target N and at least one of them must exist; columns named
// {modifier-prefix}<N> carry an optional numeric size for the same target.
package csvloader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/logger"
)

const bom = "\uFEFF"

// Options configures column conventions.
type Options struct {
	Delimiter      rune
	ContentPrefix  string
	ModifierPrefix string
}

// OptionsFrom builds loader options from CSV settings.
func OptionsFrom(s domain.CSVSettings) Options {
	return Options{
		Delimiter:      s.Delimiter,
		ContentPrefix:  s.ContentPrefix,
		ModifierPrefix: s.ModifierPrefix,
	}
}

// Loader turns CSV text into rows.
type Loader struct {
	opts Options
}

// New creates a loader, filling unset options with defaults.
func New(opts Options) *Loader {
	def := domain.DefaultSettings().CSV
	if opts.Delimiter == 0 {
		opts.Delimiter = def.Delimiter
	}
	if opts.ContentPrefix == "" {
		opts.ContentPrefix = def.ContentPrefix
	}
	if opts.ModifierPrefix == "" {
		opts.ModifierPrefix = def.ModifierPrefix
	}
	return &Loader{opts: opts}
}

// Parse parses raw CSV text.
//
// Lines whose field count differs from the header are skipped. A modifier
// value that is not a number is cleared to "" and the row is kept. Rows with
// no non-empty content field are dropped. Fails with domain.ErrInvalidFormat
// when the header has no content column and domain.ErrEmptyDataset when no
// row survives.
//
//nolint:gocognit // Sequential validation of header and rows
func (l *Loader) Parse(raw string) ([]domain.Row, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, bom)))
	r.Comma = l.opts.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no header line", domain.ErrInvalidFormat)
		}
		return nil, fmt.Errorf("%w: reading header: %v", domain.ErrInvalidFormat, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	contentCols, modifierCols := l.classify(header)
	if len(contentCols) == 0 {
		return nil, fmt.Errorf("%w: no %s<N> column in header", domain.ErrInvalidFormat, l.opts.ContentPrefix)
	}

	var rows []domain.Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("csv: skipping line %d: %v", perr.Line, perr.Err)
				continue
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		line, _ := r.FieldPos(0)
		if len(record) != len(header) {
			logger.Warn("csv: skipping line %d: %d fields, header has %d", line, len(record), len(header))
			continue
		}

		values := make(map[string]string, len(header))
		for i, col := range header {
			values[col] = strings.TrimSpace(record[i])
		}

		for _, col := range modifierCols {
			v := values[col]
			if v == "" {
				continue
			}
			if _, ok := domain.ParseModifier(v); !ok {
				logger.Warn("csv: line %d: clearing non-numeric %s value %q", line, col, v)
				values[col] = ""
			}
		}

		if !hasContent(values, contentCols) {
			logger.Debug("csv: dropping line %d: no content", line)
			continue
		}

		rows = append(rows, domain.Row{
			Line:    line,
			Values:  values,
			Columns: header,
		})
	}

	if len(rows) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	logger.Info("csv: parsed %d rows (%d content columns)", len(rows), len(contentCols))
	return rows, nil
}

// Indices returns the content indices declared by the header of rows,
// in header order.
func (l *Loader) Indices(rows []domain.Row) []int {
	if len(rows) == 0 {
		return nil
	}
	var out []int
	for _, col := range rows[0].Columns {
		if n, ok := domain.ColumnIndex(col, l.opts.ContentPrefix); ok {
			out = append(out, n)
		}
	}
	return out
}

func (l *Loader) classify(header []string) (content, modifier []string) {
	for _, col := range header {
		if _, ok := domain.ColumnIndex(col, l.opts.ContentPrefix); ok {
			content = append(content, col)
			continue
		}
		if _, ok := domain.ColumnIndex(col, l.opts.ModifierPrefix); ok {
			modifier = append(modifier, col)
		}
	}
	return content, modifier
}

func hasContent(values map[string]string, cols []string) bool {
	for _, col := range cols {
		if values[col] != "" {
			return true
		}
	}
	return false
}
