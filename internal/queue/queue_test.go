package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/post"
	"crossbot/internal/storage"
	logx "crossbot/pkg/logx"
)

type memStore struct {
	snap  storage.Snapshot
	saves int
	fail  error
}

func (m *memStore) Load(context.Context) (storage.Snapshot, error) { return m.snap, nil }
func (m *memStore) Save(_ context.Context, s storage.Snapshot) error {
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.snap = s
	return nil
}
func (m *memStore) Close() error { return nil }

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mk(id int64, at time.Time) post.Post {
	return post.New(post.Fields{ID: id, AuthorID: 1, CreatedAt: at, Mentions: []int64{2}})
}

func newQueue(t *testing.T) (*Queue, *memStore) {
	t.Helper()
	st := &memStore{}
	q, err := Load(context.Background(), st, logx.Nop())
	require.NoError(t, err)
	return q, st
}

func TestAddIsIdempotentAndPersists(t *testing.T) {
	ctx := context.Background()
	q, st := newQueue(t)

	added, err := q.Add(ctx, mk(1, t0))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = q.Add(ctx, mk(1, t0))
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, q.Count())
	assert.Equal(t, 1, st.saves)
	require.Len(t, st.snap.Pending, 1)
}

func TestAddSkipsFinished(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	require.NoError(t, q.MarkFinished(ctx, 9))

	added, err := q.Add(ctx, mk(9, t0))
	require.NoError(t, err)
	assert.False(t, added)
	assert.True(t, q.IsEmpty())
}

func TestNextIsOldestFirstAndDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	t1, t2, t3 := t0, t0.Add(time.Minute), t0.Add(2*time.Minute)
	for _, p := range []post.Post{mk(3, t3), mk(1, t1), mk(2, t2)} {
		_, err := q.Add(ctx, p)
		require.NoError(t, err)
	}

	first, ok := q.Next()
	require.True(t, ok)
	again, _ := q.Next()
	assert.Equal(t, first.ID(), again.ID())
	assert.Equal(t, 3, q.Count())

	var order []time.Time
	for !q.IsEmpty() {
		p, ok := q.Next()
		require.True(t, ok)
		order = append(order, p.CreatedAt())
		require.NoError(t, q.MarkFinished(ctx, p.ID()))
	}
	assert.Equal(t, []time.Time{t1, t2, t3}, order)

	_, ok = q.Next()
	assert.False(t, ok)
}

func TestNextTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	for _, id := range []int64{7, 3, 5} {
		_, err := q.Add(ctx, mk(id, t0))
		require.NoError(t, err)
	}
	p, _ := q.Next()
	assert.Equal(t, int64(3), p.ID())
}

func TestMarkFinishedIdempotent(t *testing.T) {
	ctx := context.Background()
	q, st := newQueue(t)
	_, err := q.Add(ctx, mk(1, t0))
	require.NoError(t, err)

	require.NoError(t, q.MarkFinished(ctx, 1))
	saves := st.saves
	snap := st.snap
	require.NoError(t, q.MarkFinished(ctx, 1))

	assert.Equal(t, saves, st.saves)
	assert.Equal(t, snap, st.snap)
	assert.True(t, q.IsFinished(1))
	assert.False(t, q.IsPending(1))
	assert.Equal(t, 1, q.FinishedCount())
}

func TestMarkFinishedResolvesOverlapFromDisk(t *testing.T) {
	st := &memStore{snap: storage.Snapshot{
		Pending:  []post.Post{mk(4, t0)},
		Finished: []int64{4},
	}}
	q, err := Load(context.Background(), st, logx.Nop())
	require.NoError(t, err)
	assert.True(t, q.IsPending(4))
	assert.True(t, q.IsFinished(4))

	require.NoError(t, q.MarkFinished(context.Background(), 4))
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 1, st.saves)
}

func TestWatermarksAreMonotonic(t *testing.T) {
	ctx := context.Background()
	q, st := newQueue(t)

	_, ok := q.Watermark(1)
	assert.False(t, ok)

	require.NoError(t, q.MarkAccountScanned(ctx, 1, t0.Add(time.Hour)))
	require.NoError(t, q.MarkAccountScanned(ctx, 1, t0))
	at, ok := q.Watermark(1)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), at)
	assert.Equal(t, 1, st.saves)

	require.NoError(t, q.MarkAccountScanned(ctx, 1, t0.Add(2*time.Hour)))
	at, _ = q.Watermark(1)
	assert.Equal(t, t0.Add(2*time.Hour), at)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	_, err := q.Add(ctx, mk(1, t0))
	require.NoError(t, err)

	changed, err := q.Replace(ctx, mk(1, t0))
	require.NoError(t, err)
	assert.False(t, changed)

	fresh := post.New(post.Fields{ID: 1, AuthorID: 1, CreatedAt: t0, Mentions: []int64{2, 3}})
	changed, err = q.Replace(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, changed)
	p, _ := q.Next()
	assert.Equal(t, []int64{2, 3}, p.Mentions())

	changed, err = q.Replace(ctx, mk(99, t0))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, q.Count())
}

func TestPersistFailureIsTyped(t *testing.T) {
	q, st := newQueue(t)
	st.fail = errors.New("disk full")

	_, err := q.Add(context.Background(), mk(1, t0))
	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "add", perr.Op)
	assert.ErrorIs(t, err, st.fail)
}

func TestPersistIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "q.db")
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	q, err := Load(context.Background(), st, logx.Nop())
	require.NoError(t, err)
	_, err = q.Add(ctx, mk(1, t0))
	require.NoError(t, err)

	reloaded, err := Load(context.Background(), st, logx.Nop())
	require.NoError(t, err)
	assert.True(t, reloaded.IsPending(1))
}

// Simulates a crash after Next and before MarkFinished: the item survives
// reload, and once finished it never comes back.
func TestCrashBetweenNextAndFinish(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue")
	open := func() *Queue {
		st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		q, err := Load(ctx, st, logx.Nop())
		require.NoError(t, err)
		return q
	}

	q := open()
	_, err := q.Add(ctx, mk(1, t0))
	require.NoError(t, err)
	_, err = q.Add(ctx, mk(2, t0.Add(time.Minute)))
	require.NoError(t, err)
	p, _ := q.Next()
	require.Equal(t, int64(1), p.ID())

	q = open() // crashed before MarkFinished
	p, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID())
	require.NoError(t, q.MarkFinished(ctx, 1))

	q = open()
	p, _ = q.Next()
	assert.Equal(t, int64(2), p.ID())
	assert.True(t, q.IsFinished(1))
	assert.Equal(t, 1, q.Count())
}
