package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/post"
	"crossbot/internal/roster"
	"crossbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:       srv.URL,
		BearerToken:   "app-token",
		UserToken:     "user-token",
		PageSize:      2,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: time.Millisecond,
	}, logx.Nop())
	require.NoError(t, err)
	return c
}

const page1 = `{
  "data": [
    {"id": "100", "author_id": "1", "created_at": "2024-03-01T12:00:00.000Z",
     "entities": {"mentions": [{"id": "2", "username": "bravo"}, {"username": "ghost"}]}},
    {"id": "101", "author_id": "1", "created_at": "2024-03-01T13:00:00.000Z",
     "in_reply_to_user_id": "3",
     "referenced_tweets": [{"type": "replied_to", "id": "90"}]}
  ],
  "includes": {"tweets": [{"id": "90", "author_id": "3"}]},
  "meta": {"next_token": "p2", "result_count": 2}
}`

const page2 = `{
  "data": [
    {"id": "102", "author_id": "1", "created_at": "2024-03-01T14:00:00.000Z",
     "referenced_tweets": [{"type": "quoted", "id": "91"}]}
  ],
  "includes": {"tweets": [{"id": "91", "author_id": "4"}]},
  "meta": {"result_count": 1}
}`

func TestFetchPostsFollowsPagination(t *testing.T) {
	var seen []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/1/tweets", r.URL.Path)
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("max_results"))
		seen = append(seen, r.URL.Query().Get("pagination_token"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pagination_token") == "p2" {
			_, _ = fmt.Fprint(w, page2)
			return
		}
		_, _ = fmt.Fprint(w, page1)
	}))

	posts, err := c.FetchPosts(context.Background(), roster.Account{ID: 1, Handle: "alpha"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "p2"}, seen)
	require.Len(t, posts, 3)

	assert.Equal(t, int64(100), posts[0].ID())
	assert.Equal(t, []int64{2}, posts[0].Mentions())
	assert.True(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Equal(posts[0].CreatedAt()))

	assert.Equal(t, post.Some(3), posts[1].ReplyTo())
	assert.False(t, posts[1].QuoteOf().Valid)

	assert.Equal(t, post.Some(4), posts[2].QuoteOf())
	assert.False(t, posts[2].ReplyTo().Valid)
}

func TestFetchPostsSinceIsExclusive(t *testing.T) {
	since := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-03-01T13:00:00Z", r.URL.Query().Get("start_time"))
		_, _ = fmt.Fprint(w, `{"data": [
			{"id": "101", "author_id": "1", "created_at": "2024-03-01T13:00:00.000Z"},
			{"id": "102", "author_id": "1", "created_at": "2024-03-01T13:00:00.001Z"}
		]}`)
	}))

	posts, err := c.FetchPosts(context.Background(), roster.Account{ID: 1}, since)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(102), posts[0].ID())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, `{"data": {"id": "7", "author_id": "1", "created_at": "2024-03-01T12:00:00Z"}}`)
	}))

	p, err := c.FetchPost(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.FetchPosts(context.Background(), roster.Account{ID: 1}, time.Time{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"title":"Not Found Error"}`, http.StatusNotFound)
	}))

	_, err := c.FetchPost(context.Background(), 9, false)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientErrorSurfacesStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))

	_, err := c.FetchPosts(context.Background(), roster.Account{ID: 1}, time.Time{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "bad token")
}

func TestPrivateLookupUsesUserToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/7", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, `{"data": {"id": "7", "author_id": "1", "created_at": "2024-03-01T12:00:00Z"}}`)
	}))

	_, err := c.FetchPost(context.Background(), 7, true)
	require.NoError(t, err)
}

func TestMalformedPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"data": [{"id": "x", "author_id": "1", "created_at": "2024-03-01T12:00:00Z"}]}`)
	}))

	_, err := c.FetchPosts(context.Background(), roster.Account{ID: 1}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{BearerToken: "x"}, logx.Nop())
	require.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://example.com", BearerToken: "x"}, logx.Nop())
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://api.example.com"}, logx.Nop())
	require.Error(t, err)
}
