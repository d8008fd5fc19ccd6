// Package post holds the cross-company post entity and its line codec.
package post

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// OptionalID is an account id that may be absent. Zero is a valid id.
type OptionalID struct {
	ID    int64
	Valid bool
}

func Some(id int64) OptionalID { return OptionalID{ID: id, Valid: true} }

func (o OptionalID) String() string {
	if !o.Valid {
		return "none"
	}
	return fmt.Sprint(o.ID)
}

// Post is one social post and the accounts it involves.
//
// Posts are immutable after construction; use New or Decode.
type Post struct {
	id          int64
	authorID    int64
	createdAt   time.Time
	mentions    []int64 // sorted, unique
	replyTo     OptionalID
	quoteOf     OptionalID
	counterpart []int64 // sorted, unique, never contains authorID
}

// Fields carries the raw values a Post is built from.
type Fields struct {
	ID        int64
	AuthorID  int64
	CreatedAt time.Time
	Mentions  []int64
	ReplyTo   OptionalID
	QuoteOf   OptionalID
}

func New(f Fields) Post {
	p := Post{
		id:        f.ID,
		authorID:  f.AuthorID,
		createdAt: f.CreatedAt.UTC(),
		mentions:  uniqueSorted(f.Mentions),
		replyTo:   f.ReplyTo,
		quoteOf:   f.QuoteOf,
	}

	parties := append([]int64(nil), p.mentions...)
	if p.replyTo.Valid {
		parties = append(parties, p.replyTo.ID)
	}
	if p.quoteOf.Valid {
		parties = append(parties, p.quoteOf.ID)
	}
	parties = uniqueSorted(parties)
	p.counterpart = slices.DeleteFunc(parties, func(id int64) bool { return id == p.authorID })
	return p
}

func (p Post) ID() int64            { return p.id }
func (p Post) AuthorID() int64      { return p.authorID }
func (p Post) CreatedAt() time.Time { return p.createdAt }
func (p Post) ReplyTo() OptionalID  { return p.replyTo }
func (p Post) QuoteOf() OptionalID  { return p.quoteOf }

// Mentions returns a copy of the mentioned account ids in ascending order.
func (p Post) Mentions() []int64 { return slices.Clone(p.mentions) }

// Counterparties returns every involved account except the author, ascending.
func (p Post) Counterparties() []int64 { return slices.Clone(p.counterpart) }

// Fields returns the values needed to rebuild the post.
func (p Post) Fields() Fields {
	return Fields{
		ID:        p.id,
		AuthorID:  p.authorID,
		CreatedAt: p.createdAt,
		Mentions:  p.Mentions(),
		ReplyTo:   p.replyTo,
		QuoteOf:   p.quoteOf,
	}
}

// Equal reports whether two posts carry the same data.
func (p Post) Equal(o Post) bool {
	return p.id == o.id &&
		p.authorID == o.authorID &&
		p.createdAt.Equal(o.createdAt) &&
		slices.Equal(p.mentions, o.mentions) &&
		p.replyTo == o.replyTo &&
		p.quoteOf == o.quoteOf
}

// Before orders posts oldest first, ties broken by smaller id.
func (p Post) Before(o Post) bool {
	if !p.createdAt.Equal(o.createdAt) {
		return p.createdAt.Before(o.createdAt)
	}
	return p.id < o.id
}

// DateString formats the creation time like "Jan 2 2006, 3:04PM (UTC)".
func (p Post) DateString() string {
	return p.createdAt.Format("Jan 2 2006, 3:04PM (MST)")
}

// Describe renders a multi-line summary. name resolves account ids to
// handles; it may be nil.
func (p Post) Describe(name func(int64) string) string {
	if name == nil {
		name = func(id int64) string { return fmt.Sprint(id) }
	}
	parties := "none"
	if len(p.counterpart) > 0 {
		names := make([]string, 0, len(p.counterpart))
		for _, id := range p.counterpart {
			names = append(names, name(id))
		}
		parties = strings.Join(names, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d from %s:\n", p.id, name(p.authorID))
	fmt.Fprintf(&b, "%s\n", p.DateString())
	fmt.Fprintf(&b, "%s\n", parties)
	fmt.Fprintf(&b, "mentions: %v\n", p.mentions)
	fmt.Fprintf(&b, "reply_to: %s\n", p.replyTo)
	fmt.Fprintf(&b, "quote_of: %s\n", p.quoteOf)
	fmt.Fprintf(&b, "%s", Encode(p))
	return b.String()
}

func (p Post) String() string { return Encode(p) }

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
