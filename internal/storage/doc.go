// Package storage persists the singleton settings record, the protocol
// session credentials, and an append-only audit trail of lifecycle actions.
//
// Drivers:
//   - "sqlite" (default): modernc.org/sqlite, pure Go
//   - "file": JSON files, no database
package storage
