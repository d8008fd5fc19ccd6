package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"crossbot/internal/post"
)

const (
	tweetFields = "created_at,author_id,entities,referenced_tweets,in_reply_to_user_id"
	expansions  = "referenced_tweets.id,referenced_tweets.id.author_id,entities.mentions.username"
)

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes includes   `json:"includes"`
	Meta     struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type lookupResponse struct {
	Data     *apiTweet `json:"data"`
	Includes includes  `json:"includes"`
}

type includes struct {
	Tweets []apiTweet `json:"tweets"`
}

type apiTweet struct {
	ID              string `json:"id"`
	AuthorID        string `json:"author_id"`
	CreatedAt       string `json:"created_at"`
	InReplyToUserID string `json:"in_reply_to_user_id"`
	Entities        struct {
		Mentions []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"mentions"`
	} `json:"entities"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// index maps included tweet ids to their author ids.
func (in includes) index() map[string]string {
	m := make(map[string]string, len(in.Tweets))
	for _, t := range in.Tweets {
		m[t.ID] = t.AuthorID
	}
	return m
}

func (r timelineResponse) posts() ([]post.Post, error) {
	authors := r.Includes.index()
	out := make([]post.Post, 0, len(r.Data))
	for _, t := range r.Data {
		p, err := t.toPost(authors)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t apiTweet) toPost(authors map[string]string) (post.Post, error) {
	id, err := parseID(t.ID)
	if err != nil {
		return post.Post{}, fmt.Errorf("tweet id: %w", err)
	}
	author, err := parseID(t.AuthorID)
	if err != nil {
		return post.Post{}, fmt.Errorf("tweet %d author_id: %w", id, err)
	}
	created, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return post.Post{}, fmt.Errorf("tweet %d created_at: %w", id, err)
	}

	f := post.Fields{ID: id, AuthorID: author, CreatedAt: created}
	for _, m := range t.Entities.Mentions {
		mid, err := parseID(m.ID)
		if err != nil {
			// Mentions of unknown handles come back without ids.
			continue
		}
		f.Mentions = append(f.Mentions, mid)
	}
	if t.InReplyToUserID != "" {
		if rid, err := parseID(t.InReplyToUserID); err == nil {
			f.ReplyTo = post.Some(rid)
		}
	}
	for _, ref := range t.ReferencedTweets {
		owner, ok := authors[ref.ID]
		if !ok {
			continue
		}
		oid, err := parseID(owner)
		if err != nil {
			continue
		}
		switch ref.Type {
		case "replied_to":
			if !f.ReplyTo.Valid {
				f.ReplyTo = post.Some(oid)
			}
		case "quoted":
			f.QuoteOf = post.Some(oid)
		}
	}
	return post.New(f), nil
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty id")
	}
	return strconv.ParseInt(s, 10, 64)
}
