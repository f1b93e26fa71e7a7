// Package domain defines the core business entities for layerforge.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Row, TargetField: CSV data mapped onto numbered text layers
//   - Layer, DocumentRef, Command: the host document model
//   - BatchState, RowResult, RunSummary: batch progress
//   - RelayEvent: status events for out-of-process observers
//   - Settings: every tunable of the pipeline
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
