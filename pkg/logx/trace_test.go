package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_catchup.txt")
	tl := NewTraceLog(path, "run-1")
	tl.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	tl.Write("Error getting posts from account 7: alice", errors.New("boom"))
	tl.Write("second failure", nil)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Equal(t, 2, strings.Count(out, "=== 2024-01-02T03:04:05Z run=run-1"))
	assert.Contains(t, out, "Error getting posts from account 7: alice")
	assert.Contains(t, out, "error: boom")
	assert.Contains(t, out, "TestTraceLogAppends")
}

func TestTraceLogDisabled(t *testing.T) {
	var tl *TraceLog
	tl.Write("ignored", errors.New("x"))
	NewTraceLog("", "").Write("ignored", nil)
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int64("post_id", 5), Err(errors.New("bad")))

	out := buf.String()
	assert.Contains(t, out, `"comp":"test"`)
	assert.Contains(t, out, `"post_id":5`)
	assert.Contains(t, out, `"err":"bad"`)
	assert.Contains(t, out, `"message":"hello"`)
}

func TestZeroLoggerIsNop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("nothing")
	assert.False(t, Nop().IsZero())
}

func TestFormatTelegramJSON(t *testing.T) {
	msg := formatTelegramJSON([]byte(`{"level":"warn","message":"scan failed","account":"alice"}`))
	assert.True(t, strings.HasPrefix(msg, "[WARN] scan failed"))
	assert.Contains(t, msg, "- account=alice")
}
