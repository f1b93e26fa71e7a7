// Package relay delivers status events to an out-of-process observer.
//
// The batch pipeline publishes through a Dispatcher, which queues events and
// writes them from a single background goroutine. Sink failures are counted
// in Diagnostics and never reach the publisher.
//
// Sinks live in subpackages:
//
//   - file: one JSON document per event in a watched folder
//   - s3: mirror into an S3-compatible bucket
package relay
