// Package memory provides in-memory implementations of driven port interfaces.
//
// These stores back tests and single-process runs:
//
//   - ConfigStore: flat key/value settings
//   - SessionStore: batch sessions kept for the process lifetime
//
// All stores are safe for concurrent use.
package memory
