// Package storage persists the announcement queue.
//
// It currently supports:
//   - "file": plain text files, one record per line, safe to inspect and edit by hand
//   - "sqlite": a single SQLite database file
//
// Every Save writes the complete snapshot. Backends never merge partial state.
package storage
