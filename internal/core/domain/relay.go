package domain

import "time"

// Relay event types.
const (
	EventRunStarted   = "run.started"
	EventRunFinished  = "run.finished"
	EventFieldApplied = "field.applied"
	EventRowCompleted = "row.completed"
	EventExported     = "export.completed"
	EventError        = "error"
)

// RelayEvent is a structured status event written to the side channel
// for an out-of-process observer.
type RelayEvent struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Time    time.Time      `json:"time"`
	Session string         `json:"session,omitempty"`
	Row     *int           `json:"row,omitempty"`
	Target  string         `json:"target,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// RowNumber returns a pointer for the Row field.
func RowNumber(i int) *int { return &i }

// StrategyOutcome is one attempt reported in relay events.
type StrategyOutcome struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FieldOutcome is the result of applying one target field.
type FieldOutcome struct {
	// Target is the resolved layer name.
	Target string

	// LayerID is the resolved layer.
	LayerID int64

	// ContentApplied is true when text was written and verified.
	ContentApplied bool

	// ModifierApplied is true when the size was written and verified.
	ModifierApplied bool

	// Strategies lists the modifier strategy attempts in order.
	Strategies []StrategyOutcome
}

// RelayDiagnostics exposes relay failures without touching the main flow.
type RelayDiagnostics struct {
	Emitted   int64
	Failed    int64
	Dropped   int64
	LastError string
	LastPath  string
}
