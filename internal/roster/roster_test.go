package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/post"
)

// Mirrors the production relation: regional groups only count one way.
func testRoster(t *testing.T) *Roster {
	t.Helper()
	r, err := New(
		[]Account{
			{ID: 1, Handle: "a_main_1", Tag: "org-a-main"},
			{ID: 2, Handle: "a_main_2", Tag: "org-a-main"},
			{ID: 3, Handle: "a_regional", Tag: "org-a-regional"},
			{ID: 10, Handle: "b_main", Tag: "org-b-main"},
			{ID: 11, Handle: "@b_regional", Tag: "org-b-regional", Private: true},
		},
		[]Pair{
			{From: "org-a-main", To: "org-b-main"},
			{From: "org-a-main", To: "org-b-regional"},
			{From: "org-b-main", To: "org-a-main"},
			{From: "org-b-main", To: "org-a-regional"},
			{From: "org-a-regional", To: "org-b-main"},
			{From: "org-b-regional", To: "org-a-main"},
		},
	)
	require.NoError(t, err)
	return r
}

func mention(author int64, others ...int64) post.Post {
	return post.New(post.Fields{ID: 100, AuthorID: author, CreatedAt: time.Unix(1, 0), Mentions: others})
}

func TestCrossCompanyScenario(t *testing.T) {
	r := testRoster(t)
	assert.True(t, mention(1, 10).IsCrossCompany(r), "org-a-main mentioning org-b-main")
	assert.False(t, mention(1, 2).IsCrossCompany(r), "same organization")
}

func TestCrossRelationIsDirectional(t *testing.T) {
	r := testRoster(t)
	assert.True(t, mention(1, 11).IsCrossCompany(r))
	assert.True(t, mention(11, 1).IsCrossCompany(r))
	assert.False(t, mention(3, 11).IsCrossCompany(r), "regional to regional is not listed")
	assert.True(t, mention(3, 10).IsCrossCompany(r))
	assert.False(t, mention(11, 3).IsCrossCompany(r))
}

func TestCrossCompanyViaReplyAndQuote(t *testing.T) {
	r := testRoster(t)
	reply := post.New(post.Fields{ID: 1, AuthorID: 10, ReplyTo: post.Some(2)})
	quote := post.New(post.Fields{ID: 2, AuthorID: 10, QuoteOf: post.Some(3)})
	self := post.New(post.Fields{ID: 3, AuthorID: 10, ReplyTo: post.Some(10)})
	assert.True(t, reply.IsCrossCompany(r))
	assert.True(t, quote.IsCrossCompany(r))
	assert.False(t, self.IsCrossCompany(r))
}

func TestUntaggedAuthorOrCounterparty(t *testing.T) {
	r := testRoster(t)
	assert.False(t, mention(999, 10).IsCrossCompany(r))
	assert.False(t, mention(1, 999).IsCrossCompany(r))
	assert.False(t, mention(1).IsCrossCompany(r))
	assert.False(t, mention(1, 10).IsCrossCompany(nil))
}

func TestClassificationIsDeterministic(t *testing.T) {
	r := testRoster(t)
	p := mention(1, 2, 999, 11)
	first := p.IsCrossCompany(r)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, p.IsCrossCompany(r))
		_ = mention(10, 1).IsCrossCompany(r)
	}
	assert.True(t, first)
}

func TestLookups(t *testing.T) {
	r := testRoster(t)
	a, ok := r.ByHandle("@B_Regional")
	require.True(t, ok)
	assert.Equal(t, int64(11), a.ID)
	assert.Equal(t, "b_regional", r.Handle(11))
	assert.Equal(t, "42", r.Handle(42))
	assert.True(t, r.IsPrivate(11))
	assert.False(t, r.IsPrivate(1))
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, "a_main_1", r.Accounts()[0].Handle)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New([]Account{{ID: 1, Handle: "x", Tag: "t"}, {ID: 1, Handle: "y", Tag: "t"}}, nil)
	assert.ErrorContains(t, err, "duplicate account id")

	_, err = New([]Account{{ID: 1, Handle: "x", Tag: "t"}, {ID: 2, Handle: "X", Tag: "t"}}, nil)
	assert.ErrorContains(t, err, "duplicate handle")

	_, err = New([]Account{{ID: 1, Handle: "x", Tag: "t"}}, []Pair{{From: "t", To: "nope"}})
	assert.ErrorContains(t, err, "unknown tag")

	_, err = New([]Account{{ID: 1, Handle: "x"}}, nil)
	assert.ErrorContains(t, err, "no tag")
}
