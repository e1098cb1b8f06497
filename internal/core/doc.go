// Package core provides the business logic of the registry service.
//
// This package sits between the transports (HTTP handlers, the batch
// importer CLI) and the engine packages. It owns no state of its own beyond
// the import limiter and the recent-import journal; the registry itself is
// held by a persist.Coordinator.
//
// # Architecture
//
//   - Service: the entry point for imports, previews, claims, queries, reset
//     and mirror resync.
//   - ImportLimiter: bounds how many imports are built and reconciled at once.
//   - Journal: the most recent import outcomes, newest first.
//   - Mirror scheduler: periodically retries a dirty remote mirror.
//
// # Import Flow
//
//  1. Caller passes file bytes and a reconcile.Mode to [Service.ImportFile]
//  2. A limiter slot is acquired (or ErrTooManyImports after the wait)
//  3. importer.Build decodes and folds the file into a Batch
//  4. reconcile.Apply runs inside persist.Coordinator.Apply, so the registry
//     changes all at once or not at all
//  5. The local snapshot is written before returning; the mirror push is not
//     awaited
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - IMP001-IMP004: Import file structure and mode
//   - FILE001-FILE004: File errors (size, upload form, encoding, missing)
//   - PER001-PER005: Persistence (local write, mirror, connectivity)
//   - REG001-REG005: Registry lookups and claims
//   - VAL001: Request validation
//   - UPL002-UPL005: Import concurrency, cancellation, timeout
//   - RATE001: Rate limiting
package core
