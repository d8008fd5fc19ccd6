package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/post"
	logx "crossbot/pkg/logx"
)

func sampleSnapshot() Snapshot {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Snapshot{
		Pending: []post.Post{
			post.New(post.Fields{ID: 30, AuthorID: 1, CreatedAt: at, Mentions: []int64{10}}),
			post.New(post.Fields{ID: 20, AuthorID: 10, CreatedAt: at.Add(-time.Hour), ReplyTo: post.Some(0)}),
		},
		Finished: []int64{5, 3, 4},
		Watermarks: map[int64]time.Time{
			1:  at.Add(1500 * time.Microsecond),
			10: at,
		},
	}
}

func assertSameSnapshot(t *testing.T, want, got Snapshot) {
	t.Helper()
	require.Len(t, got.Pending, len(want.Pending))
	byID := map[int64]post.Post{}
	for _, p := range got.Pending {
		byID[p.ID()] = p
	}
	for _, p := range want.Pending {
		g, ok := byID[p.ID()]
		require.True(t, ok, "missing pending %d", p.ID())
		assert.True(t, p.Equal(g), "pending %d changed: %s vs %s", p.ID(), p, g)
	}
	assert.ElementsMatch(t, want.Finished, got.Finished)
	require.Len(t, got.Watermarks, len(want.Watermarks))
	for id, at := range want.Watermarks {
		assert.True(t, at.Equal(got.Watermarks[id]), "watermark %d: %v vs %v", id, at, got.Watermarks[id])
	}
}

func TestStoresRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "queue.db")
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)

			empty, err := st.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty.Pending)
			assert.Empty(t, empty.Finished)
			assert.Empty(t, empty.Watermarks)

			want := sampleSnapshot()
			require.NoError(t, st.Save(ctx, want))
			require.NoError(t, st.Close())

			st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			got, err := st.Load(ctx)
			require.NoError(t, err)
			assertSameSnapshot(t, want, got)

			// Second save shrinks pending.
			want.Pending = want.Pending[:1]
			want.Finished = append(want.Finished, 20)
			require.NoError(t, st.Save(ctx, want))
			got, err = st.Load(ctx)
			require.NoError(t, err)
			assertSameSnapshot(t, want, got)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "queue.txt")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, sampleSnapshot()))

	b, err := os.ReadFile(filepath.Join(dir, "queue.finished.txt"))
	require.NoError(t, err)
	assert.Equal(t, "3\n4\n5\n", string(b))

	b, err = os.ReadFile(filepath.Join(dir, "queue.pending.txt"))
	require.NoError(t, err)
	assert.Equal(t, "30 1 1714564800.0 m 10\n20 10 1714561200.0 r 0\n", string(b))

	b, err = os.ReadFile(filepath.Join(dir, "queue.watermarks.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1 1714564800.0015\n10 1714564800.0\n", string(b))
}

func TestFileStoreSkipsCommentsAndSurfacesMalformedLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Path: filepath.Join(dir, "queue")}, logx.Nop())
	require.NoError(t, err)

	pending := filepath.Join(dir, "queue.pending.txt")
	require.NoError(t, os.WriteFile(pending, []byte("# hand edited\n\n5 7 1700000000.0 m 9 11 r 3\n"), 0o600))
	snap, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, int64(5), snap.Pending[0].ID())

	require.NoError(t, os.WriteFile(pending, []byte("5 7 1700000000.0\n6 7\n"), 0o600))
	_, err = st.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, post.ErrMalformedRecord))
	assert.Contains(t, err.Error(), "queue.pending.txt:2")

	require.NoError(t, os.WriteFile(pending, nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.finished.txt"), []byte("12x\n"), 0o600))
	_, err = st.Load(ctx)
	assert.ErrorContains(t, err, "invalid post id")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
