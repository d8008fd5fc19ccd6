// Package announce publishes cross-company posts. The Announcer renders a
// post into message text and hands it to a Publisher (Telegram or the log).
package announce

import (
	"context"
	"errors"
	"fmt"

	"crossbot/internal/post"
	"crossbot/pkg/logx"
)

// Publisher delivers one rendered announcement.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// Lookup resolves a post by id for AnnounceByID.
type Lookup interface {
	FetchPost(ctx context.Context, id int64, private bool) (post.Post, error)
}

type Announcer struct {
	pub    Publisher
	lookup Lookup
	format Formatter
	log    logx.Logger
}

func New(pub Publisher, lookup Lookup, format Formatter, log logx.Logger) (*Announcer, error) {
	if pub == nil {
		return nil, errors.New("announce: nil publisher")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Announcer{pub: pub, lookup: lookup, format: format, log: log}, nil
}

// Announce publishes p. It reports true once the publisher accepted it.
func (a *Announcer) Announce(ctx context.Context, p post.Post) (bool, error) {
	text := a.format.Text(p)
	if err := a.pub.Publish(ctx, text); err != nil {
		return false, err
	}
	a.log.Info("announced post", logx.Int64("post_id", p.ID()), logx.Int64("author_id", p.AuthorID()))
	return true, nil
}

// AnnounceByID fetches the post first. Posts that are not cross-company
// are still published: the caller asked for this id explicitly.
func (a *Announcer) AnnounceByID(ctx context.Context, id int64) (bool, error) {
	if a.lookup == nil {
		return false, errors.New("announce: no lookup configured")
	}
	p, err := a.lookup.FetchPost(ctx, id, false)
	if err != nil {
		return false, fmt.Errorf("fetch post %d: %w", id, err)
	}
	return a.Announce(ctx, p)
}
