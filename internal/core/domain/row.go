package domain

import (
	"math"
	"strconv"
	"strings"
)

// Row is one CSV data line mapped by column name.
// Rows are immutable once the loader returns them.
type Row struct {
	// Line is the 1-based line number in the source text.
	Line int

	// Values maps trimmed header names to field values.
	Values map[string]string

	// Columns preserves the header order.
	Columns []string
}

// Get returns the value of a column, or "" when absent.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// ColumnIndex extracts N from a column named prefix<N>.
// The second result is false when the name does not follow the convention.
func ColumnIndex(column, prefix string) (int, bool) {
	if prefix == "" || !strings.HasPrefix(column, prefix) {
		return 0, false
	}
	digits := column[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TargetField pairs the content and modifier values a row supplies for index N.
type TargetField struct {
	// Index is the N shared by content<N>, modifier<N> and the layer name.
	Index int

	// Content is the raw content value, escape tokens not yet expanded.
	Content string

	// Modifier is the raw modifier value ("" when absent or cleared).
	Modifier string
}

// HasContent reports whether the row supplies text for this target.
func (f TargetField) HasContent() bool { return f.Content != "" }

// ModifierValue parses the modifier as a number.
func (f TargetField) ModifierValue() (float64, bool) {
	if f.Modifier == "" {
		return 0, false
	}
	return ParseModifier(f.Modifier)
}

// ParseModifier parses a modifier cell as a finite number.
// NaN and infinities are rejected.
func ParseModifier(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// IsEmpty reports whether neither content nor a usable modifier is present.
func (f TargetField) IsEmpty() bool {
	_, ok := f.ModifierValue()
	return !f.HasContent() && !ok
}

// TargetFields derives the target fields of the row in header order.
// Only indices that have a content column are returned.
func (r Row) TargetFields(contentPrefix, modifierPrefix string) []TargetField {
	var fields []TargetField
	for _, col := range r.Columns {
		n, ok := ColumnIndex(col, contentPrefix)
		if !ok {
			continue
		}
		fields = append(fields, TargetField{
			Index:    n,
			Content:  r.Values[col],
			Modifier: r.Values[modifierPrefix+strconv.Itoa(n)],
		})
	}
	return fields
}

// ExpandLineBreaks replaces the escape token with the host hard line break.
func ExpandLineBreaks(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, LineBreak)
}

// LineBreak is the paragraph separator hosts use inside text layer content.
const LineBreak = "\r"
