// Package httpapi fetches posts from a v2-style JSON HTTP API
// (users/{id}/tweets timelines and single tweet lookups).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"crossbot/internal/post"
	"crossbot/internal/roster"
	"crossbot/pkg/logx"
)

type Config struct {
	BaseURL     string
	BearerToken string
	// UserToken, when set, is used for lookups of posts by private accounts.
	UserToken     string
	PageSize      int
	RatePerSec    float64
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.RetryMaxDelay < c.RetryBase {
		c.RetryMaxDelay = c.RetryBase
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// APIError is a non-2xx response that was not retried away.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("source api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("source api returned status %d: %s", e.StatusCode, e.Body)
}

// ErrNotFound is returned by FetchPost for a missing or deleted post.
var ErrNotFound = errors.New("post not found")

type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	exec    failsafe.Executor[*http.Response]
	limiter *rate.Limiter
	log     logx.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("source.base_url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("source.base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("source.base_url: unsupported scheme %q", base.Scheme)
	}
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return nil, errors.New("source.bearer_token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	c := &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		exec:    failsafe.With(newRetryPolicy(cfg, log)),
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With(logx.String("component", "httpapi")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// shouldRetry retries transport errors, 5xx and 429.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

//nolint:bodyclose // the type parameter is not a live response
func newRetryPolicy(cfg Config, log logx.Logger) retrypolicy.RetryPolicy[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		HandleIf(shouldRetry).
		WithBackoff(cfg.RetryBase, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.RetryMax).
		WithJitterFactor(0.1).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			f := []logx.Field{logx.Int("attempt", e.Attempts())}
			if err := e.LastError(); err != nil {
				f = append(f, logx.Err(err))
			}
			if r := e.LastResult(); r != nil {
				f = append(f, logx.Int("status", r.StatusCode))
			}
			log.Warn("retrying source request", f...)
		}).
		Build()
}

// FetchPosts returns every post by acct created after since, following
// pagination to the end.
func (c *Client) FetchPosts(ctx context.Context, acct roster.Account, since time.Time) ([]post.Post, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(c.cfg.PageSize))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", expansions)
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}
	path := "/2/users/" + strconv.FormatInt(acct.ID, 10) + "/tweets"

	var out []post.Post
	for page := 1; ; page++ {
		var body timelineResponse
		if err := c.getJSON(ctx, path, q, c.cfg.BearerToken, &body); err != nil {
			return nil, err
		}
		posts, err := body.posts()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		for _, p := range posts {
			// start_time is inclusive upstream.
			if !since.IsZero() && !p.CreatedAt().After(since) {
				continue
			}
			out = append(out, p)
		}
		c.log.Debug("fetched timeline page",
			logx.Int64("account_id", acct.ID),
			logx.Int("page", page),
			logx.Int("posts", len(posts)),
		)
		if body.Meta.NextToken == "" {
			return out, nil
		}
		q.Set("pagination_token", body.Meta.NextToken)
	}
}

// FetchPost looks up a single post.
func (c *Client) FetchPost(ctx context.Context, id int64, private bool) (post.Post, error) {
	q := url.Values{}
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", expansions)
	token := c.cfg.BearerToken
	if private && c.cfg.UserToken != "" {
		token = c.cfg.UserToken
	}

	var body lookupResponse
	err := c.getJSON(ctx, "/2/tweets/"+strconv.FormatInt(id, 10), q, token, &body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return post.Post{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return post.Post{}, err
	}
	if body.Data == nil {
		return post.Post{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return body.Data.toPost(body.Includes.index())
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, token string, dst any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	target := u.String()

	resp, err := c.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if shouldRetry(resp, err) && resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return resp, err
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
