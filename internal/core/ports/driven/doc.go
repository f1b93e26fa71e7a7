// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Host Interfaces
//
// The host application is opaque and reached only through:
//
//   - DocumentAPI: layer query and direct property writes
//   - CommandExecutor: declarative command execution
//   - Storage: folders, files and access grants for the command layer
//
// # Side Channel
//
//   - RelaySink: best-effort event persistence
//   - EventPublisher: fire-and-forget publishing with diagnostics
//
// # Application State
//
//   - DocumentStore: persisted document model behind the local host
//   - SessionStore: in-memory batch sessions
//   - ConfigStore: application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
