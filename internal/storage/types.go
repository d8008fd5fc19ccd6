package storage

import (
	"context"
	"time"

	"crossbot/internal/post"
)

// Config configures storage.
//
// Driver values:
//   - "file": text backend (default)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the full durable queue state.
type Snapshot struct {
	Pending    []post.Post
	Finished   []int64
	Watermarks map[int64]time.Time
}

// Store is the persistence API used by the queue.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Close() error
}
