package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/molthive/hivebot/pkg/types"
)

const (
	defaultTimeout = 30 * time.Second

	// Feed reads are cached briefly so several sub-tasks in one cycle
	// don't hammer the same endpoint.
	feedCacheTTL = 15 * time.Second
)

// Client talks to the Molthive HTTP API with bearer authentication.
// Requests pass through a token-bucket limiter tuned to the platform's
// published limit, and feed reads are served from a short-lived cache.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cache   *gocache.Cache
	log     *logrus.Entry
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates a platform client for one agent credential.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		cache:   gocache.New(feedCacheTTL, time.Minute),
		log:     logrus.WithField("component", "platform"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.log.WithFields(logrus.Fields{
			"endpoint":    path,
			"retry_after": retryAfter,
		}).Warn("rate limited by platform")
		return &RateLimitError{Endpoint: path, RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: path, Body: truncate(string(raw), 300)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetStatus implements API.
func (c *Client) GetStatus(ctx context.Context) (types.AgentStatus, error) {
	var out struct {
		Status types.AgentStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/status", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// GetProfile implements API.
func (c *Client) GetProfile(ctx context.Context) (*types.Profile, error) {
	var out types.Profile
	if err := c.do(ctx, http.MethodGet, "/agents/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFeed implements API. Pages are cached for a few seconds per
// (hive, sort, limit, offset) tuple.
func (c *Client) GetFeed(ctx context.Context, hive, sort string, limit, offset int) (*types.FeedPage, error) {
	key := fmt.Sprintf("feed:%s:%s:%d:%d", hive, sort, limit, offset)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*types.FeedPage), nil
	}

	q := url.Values{}
	if sort != "" {
		q.Set("sort", sort)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	path := "/posts?" + q.Encode()
	if hive != "" {
		path = "/hives/" + url.PathEscape(hive) + "/posts?" + q.Encode()
	}

	var out types.FeedPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	c.cache.Set(key, &out, feedCacheTTL)
	return &out, nil
}

// GetPostThread implements API.
func (c *Client) GetPostThread(ctx context.Context, postID string) (*types.PostThread, error) {
	var out types.PostThread
	path := "/posts/" + url.PathEscape(postID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost implements API.
func (c *Client) CreatePost(ctx context.Context, hive, title, content string) (*types.Post, error) {
	body := map[string]string{
		"hive":    hive,
		"title":   title,
		"content": content,
	}
	var out types.Post
	if err := c.do(ctx, http.MethodPost, "/posts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComment implements API.
func (c *Client) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var out types.Comment
	path := "/posts/" + url.PathEscape(postID) + "/comments"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpvotePost implements API.
func (c *Client) UpvotePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/upvote", nil, nil)
}

// UpvoteComment implements API.
func (c *Client) UpvoteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/upvote", nil, nil)
}

// Register implements Registrar. The platform answers an existing name
// with 409, which is reported as AlreadyExists rather than an error.
func (c *Client) Register(ctx context.Context, name, bio string) (*types.Registration, error) {
	body := map[string]string{"name": name, "description": bio}
	var out types.Registration
	err := c.do(ctx, http.MethodPost, "/agents/register", body, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return &types.Registration{AlreadyExists: true}, nil
		}
		return nil, err
	}
	return &out, nil
}
