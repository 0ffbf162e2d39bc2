// Package core provides the cleaning pipeline and upload bookkeeping.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Upload Flow
//
// Every call to [Service.Upload] follows the same path:
//
//  1. The raw bytes are persisted through the [ArtifactStore]
//  2. The delimiter is sniffed and the bytes parsed into a [Table]
//  3. The table is validated structurally (empty, one column, no headers)
//  4. The cleaning pipeline runs (see [Clean])
//  5. The cleaned table is written as cleaned_<stored name>
//  6. Exactly one [UploadAttempt] is appended through the [Recorder]
//
// Failures at any step short-circuit to a recorded outcome. Step 6 runs on
// every exit path, including recovered panics.
//
// # Error Handling
//
// Failures are classified by sentinel errors ([ErrParse], [ErrEmptyInput],
// [ErrInvalidStructure], [ErrMissingHeaders], ...) wrapped in [*Error], which
// carries the recorded [Outcome]. User-facing text is produced by [MapError]:
//
//   - FILE001-FILE006: File errors (size, encoding, format, empty)
//   - VAL001-VAL004: Structural validation errors
//   - UPL001-UPL005: Upload errors (busy, cancelled, timeout)
//   - STO001-STO002: Artifact errors (not found, unreadable)
//   - ERR000: Fallback for everything else
package core
