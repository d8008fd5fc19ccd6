package logx

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// TraceLog appends human-readable failure traces to a file.
//
// Entry layout:
//
//	=== 2024-01-02T15:04:05Z run=<id>
//	<what failed>
//	error: <err>
//	<stack>
//
// A zero TraceLog (empty path) discards entries.
type TraceLog struct {
	path  string
	runID string
	now   func() time.Time

	mu sync.Mutex
}

func NewTraceLog(path, runID string) *TraceLog {
	return &TraceLog{path: strings.TrimSpace(path), runID: runID, now: time.Now}
}

func (t *TraceLog) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Write records one failure. It never returns an error to the caller;
// a failing trace write is reported on stderr only.
func (t *TraceLog) Write(what string, err error) {
	if t == nil || t.path == "" {
		return
	}
	var b strings.Builder
	b.WriteString("=== ")
	b.WriteString(t.now().UTC().Format(time.RFC3339))
	if t.runID != "" {
		b.WriteString(" run=")
		b.WriteString(t.runID)
	}
	b.WriteString("\n")
	b.WriteString(what)
	b.WriteString("\n")
	if err != nil {
		b.WriteString("error: ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	b.WriteString(stackTrace(3, 24))
	b.WriteString("\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	f, ferr := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if ferr != nil {
		fmt.Fprintf(Stderr(), "logx: failed opening trace log %q: %v\n", t.path, ferr)
		return
	}
	defer f.Close()
	if _, werr := f.WriteString(b.String()); werr != nil {
		fmt.Fprintf(Stderr(), "logx: failed writing trace log %q: %v\n", t.path, werr)
	}
}
