// Package catchup scans every roster account for cross-company posts and
// announces the queued posts one at a time under a fixed rate limit.
//
// A run alternates between two phases:
//
//	SCANNING -> DRAINING -> DONE
//	    |           |
//	    +-> FAILED <+
//
// Scanning fetches posts newer than each account's watermark and queues the
// cross-company ones. Draining announces the oldest pending post, marks it
// finished whatever the outcome, and rests before the next one. A scan that
// fails for any account disables draining for the whole run.
//
// Interrupts arrive as context cancellation and are only observed between
// network calls: fetches and announcements always run to completion.
package catchup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crossbot/internal/post"
	"crossbot/internal/roster"
)

// Fetcher pulls posts from the source.
type Fetcher interface {
	// FetchPosts returns posts by the account created after since.
	// A zero since means the full available history.
	FetchPosts(ctx context.Context, acct roster.Account, since time.Time) ([]post.Post, error)
	FetchPost(ctx context.Context, id int64, private bool) (post.Post, error)
}

// Announcer publishes a post. It reports true only when the announcement
// was confirmed.
type Announcer interface {
	Announce(ctx context.Context, p post.Post) (bool, error)
	AnnounceByID(ctx context.Context, id int64) (bool, error)
}

// Roster is the account list plus tag membership.
type Roster interface {
	post.Membership
	Accounts() []roster.Account
	IsPrivate(id int64) bool
}

// Clock abstracts time so tests can skip the rate-limit pauses.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx's error then.
	Sleep(ctx context.Context, d time.Duration) error
}

type State int

const (
	StateIdle State = iota
	StateScanning
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrInterrupted is returned when the run context was cancelled.
var ErrInterrupted = errors.New("catch-up interrupted")

// FetchError aborts a scan phase.
type FetchError struct {
	Account roster.Account
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch posts for %d (%s): %v", e.Account.ID, e.Account.Handle, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AnnouncementError is logged per item and never retried.
type AnnouncementError struct {
	PostID int64
	Err    error
}

func (e *AnnouncementError) Error() string {
	return fmt.Sprintf("announce post %d: %v", e.PostID, e.Err)
}

func (e *AnnouncementError) Unwrap() error { return e.Err }

// ScanOutcome is the result of one scan phase.
type ScanOutcome struct {
	Accounts    int // accounts scanned successfully
	Fetched     int
	Added       int
	Err         error // *FetchError or *queue.PersistError
	Interrupted bool
}

// SafeToPost reports whether every account was scanned completely.
func (o ScanOutcome) SafeToPost() bool { return o.Err == nil && !o.Interrupted }

// DrainOutcome is the result of one drain phase.
type DrainOutcome struct {
	Announced   int
	Refused     int // announcer returned false or an error
	Skipped     int // already finished out of band
	Exhausted   bool
	Err         error
	Interrupted bool
}

// Result summarizes a whole run.
type Result struct {
	State     State
	Scans     int
	Queued    int
	Announced int
	Refused   int
	Skipped   int
	Explicit  int // explicit ids announced
	Err       error
}

// Settings holds the timing knobs.
type Settings struct {
	// RateLimit is the rest after each successful announcement.
	RateLimit time.Duration
	// Warning is the final part of RateLimit, logged as a countdown.
	Warning time.Duration
	// PostCooldown is the rest between explicitly requested ids.
	PostCooldown time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		RateLimit:    15 * time.Minute,
		Warning:      5 * time.Second,
		PostCooldown: 5 * time.Minute,
	}
}

// Options are the per-run switches.
type Options struct {
	// PostIDs are announced before anything else.
	PostIDs []int64
	// RefreshQueue re-fetches every pending post before draining.
	RefreshQueue bool
	// StraightToQueue drains the stored queue before the first scan.
	StraightToQueue bool
}
