// Package local is a reference host that runs batches without a desktop
// editor.
//
// Documents and layers live in a SQLite document store. Commands mutate that
// model and render it into flattened PNG or PSD files. Storage maps onto the
// OS file system and follows the same grant rule as a sandboxed editor: the
// command layer only writes to files that were turned into grant tokens.
//
// Options can make the host misbehave like a real editor does, which is how
// the fallback chains of the mutation and export adapters are exercised end
// to end.
package local
