// Package queue is the persisted, deduplicated announcement queue.
//
// Every mutating call writes the full state through the Store before it
// returns. A Queue is not safe for concurrent use.
package queue

import (
	"context"
	"fmt"
	"slices"
	"time"

	"crossbot/internal/post"
	"crossbot/internal/storage"
	logx "crossbot/pkg/logx"
)

// PersistError means the durable store could not be written. Callers must
// not perform further external side effects after seeing one.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist queue after %s: %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

type Queue struct {
	store storage.Store
	log   logx.Logger

	pending    map[int64]post.Post
	finished   map[int64]struct{}
	watermarks map[int64]time.Time
}

// Load reads the queue state from store.
func Load(ctx context.Context, store storage.Store, log logx.Logger) (*Queue, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	q := &Queue{
		store:      store,
		log:        log,
		pending:    make(map[int64]post.Post, len(snap.Pending)),
		finished:   make(map[int64]struct{}, len(snap.Finished)),
		watermarks: make(map[int64]time.Time, len(snap.Watermarks)),
	}
	for _, p := range snap.Pending {
		q.pending[p.ID()] = p
	}
	for _, id := range snap.Finished {
		q.finished[id] = struct{}{}
	}
	for id, at := range snap.Watermarks {
		q.watermarks[id] = at
	}
	return q, nil
}

// Add queues p unless its id is finished or already pending.
// It reports whether the queue changed.
func (q *Queue) Add(ctx context.Context, p post.Post) (bool, error) {
	if _, done := q.finished[p.ID()]; done {
		return false, nil
	}
	if _, ok := q.pending[p.ID()]; ok {
		return false, nil
	}
	q.pending[p.ID()] = p
	return true, q.persist(ctx, "add")
}

// Replace swaps the stored content of a pending post (used after a re-fetch).
// Ids that are not pending are ignored.
func (q *Queue) Replace(ctx context.Context, p post.Post) (bool, error) {
	old, ok := q.pending[p.ID()]
	if !ok || old.Equal(p) {
		return false, nil
	}
	q.pending[p.ID()] = p
	return true, q.persist(ctx, "replace")
}

// Next returns the oldest pending post (ties by smaller id) without
// removing it. Only MarkFinished removes it.
func (q *Queue) Next() (post.Post, bool) {
	var (
		best  post.Post
		found bool
	)
	for _, p := range q.pending {
		if !found || p.Before(best) {
			best, found = p, true
		}
	}
	return best, found
}

// MarkFinished moves id into the finished set. Unknown or already
// finished ids are accepted; the call is idempotent.
func (q *Queue) MarkFinished(ctx context.Context, id int64) error {
	_, wasPending := q.pending[id]
	_, wasFinished := q.finished[id]
	if wasFinished && !wasPending {
		return nil
	}
	delete(q.pending, id)
	q.finished[id] = struct{}{}
	return q.persist(ctx, "mark finished")
}

// MarkAccountScanned advances the account watermark. Earlier or equal
// times are ignored.
func (q *Queue) MarkAccountScanned(ctx context.Context, accountID int64, asOf time.Time) error {
	asOf = asOf.UTC().Truncate(time.Microsecond)
	if cur, ok := q.watermarks[accountID]; ok && !asOf.After(cur) {
		return nil
	}
	q.watermarks[accountID] = asOf
	return q.persist(ctx, "mark account scanned")
}

// Watermark returns the last scanned time for the account.
func (q *Queue) Watermark(accountID int64) (time.Time, bool) {
	at, ok := q.watermarks[accountID]
	return at, ok
}

// Watermarks returns a copy of every account watermark.
func (q *Queue) Watermarks() map[int64]time.Time {
	out := make(map[int64]time.Time, len(q.watermarks))
	for id, at := range q.watermarks {
		out[id] = at
	}
	return out
}

func (q *Queue) IsFinished(id int64) bool {
	_, ok := q.finished[id]
	return ok
}

func (q *Queue) IsPending(id int64) bool {
	_, ok := q.pending[id]
	return ok
}

func (q *Queue) Count() int    { return len(q.pending) }
func (q *Queue) IsEmpty() bool { return len(q.pending) == 0 }

func (q *Queue) FinishedCount() int { return len(q.finished) }

// Pending returns the pending posts in announcement order.
func (q *Queue) Pending() []post.Post {
	out := make([]post.Post, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b post.Post) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Persist writes the full state. Mutating calls already do this; it is
// exposed for shutdown paths.
func (q *Queue) Persist(ctx context.Context) error {
	return q.persist(ctx, "flush")
}

func (q *Queue) persist(ctx context.Context, op string) error {
	snap := storage.Snapshot{
		Pending:    q.Pending(),
		Finished:   make([]int64, 0, len(q.finished)),
		Watermarks: make(map[int64]time.Time, len(q.watermarks)),
	}
	for id := range q.finished {
		snap.Finished = append(snap.Finished, id)
	}
	for id, at := range q.watermarks {
		snap.Watermarks[id] = at
	}
	// An interrupt must not cut the write that records it.
	if err := q.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		q.log.Error("queue persist failed", logx.String("op", op), logx.Err(err))
		return &PersistError{Op: op, Err: err}
	}
	return nil
}
