package post

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterpartiesExcludeAuthorAndAbsent(t *testing.T) {
	p := New(Fields{
		ID:       1,
		AuthorID: 7,
		Mentions: []int64{7, 8, 8},
		ReplyTo:  Some(7),
		QuoteOf:  OptionalID{},
	})
	assert.Equal(t, []int64{8}, p.Counterparties())
	assert.Equal(t, []int64{7, 8}, p.Mentions())
}

func TestAccessorsReturnCopies(t *testing.T) {
	p := New(Fields{ID: 1, AuthorID: 2, Mentions: []int64{3}})
	m := p.Mentions()
	m[0] = 99
	c := p.Counterparties()
	c[0] = 99
	assert.Equal(t, []int64{3}, p.Mentions())
	assert.Equal(t, []int64{3}, p.Counterparties())
}

func TestBefore(t *testing.T) {
	t1 := time.Unix(100, 0)
	a := New(Fields{ID: 2, CreatedAt: t1})
	b := New(Fields{ID: 1, CreatedAt: t1.Add(time.Second)})
	c := New(Fields{ID: 1, CreatedAt: t1})
	assert.True(t, a.Before(b))
	assert.True(t, c.Before(a))
	assert.False(t, a.Before(c))
}

func TestDescribe(t *testing.T) {
	p := New(Fields{ID: 5, AuthorID: 7, CreatedAt: time.Date(2024, 3, 9, 15, 4, 0, 0, time.UTC), Mentions: []int64{9}})
	names := map[int64]string{7: "alice", 9: "bob"}
	out := p.Describe(func(id int64) string { return names[id] })
	assert.True(t, strings.HasPrefix(out, "5 from alice:\n"))
	assert.Contains(t, out, "Mar 9 2024, 3:04PM (UTC)")
	assert.Contains(t, out, "\nbob\n")
	assert.True(t, strings.HasSuffix(out, "5 7 1709996640.0 m 9"))
}
