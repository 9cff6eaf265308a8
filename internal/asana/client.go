// Package asana is a small client for the parts of the Asana REST API the
// bridge reads: tasks, stories, users, project task lists and webhooks.
package asana

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
	"strings"
	"time"
)

const DefaultBaseURL = "https://app.asana.com/api/1.0"

var (
	// ErrNotFound is returned for 404 and 410 responses (deleted or hidden resources).
	ErrNotFound = errors.New("asana: resource not found")
	ErrNoToken  = errors.New("asana: access token is empty")
)

// APIError is a non-2xx response that is not ErrNotFound.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asana: status=%d message=%s", e.Status, e.Message)
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: hc,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Task fetches one task with the TaskFields projection.
func (c *Client) Task(ctx context.Context, gid string) (Task, error) {
	var t Task
	err := c.getData(ctx, "/tasks/"+url.PathEscape(gid), url.Values{"opt_fields": {TaskFields}}, &t)
	return t, err
}

// Story fetches one story with the StoryFields projection.
func (c *Client) Story(ctx context.Context, gid string) (Story, error) {
	var s Story
	err := c.getData(ctx, "/stories/"+url.PathEscape(gid), url.Values{"opt_fields": {StoryFields}}, &s)
	return s, err
}

// User fetches one user.
func (c *Client) User(ctx context.Context, gid string) (User, error) {
	var u User
	err := c.getData(ctx, "/users/"+url.PathEscape(gid), url.Values{"opt_fields": {UserFields}}, &u)
	return u, err
}

// ProjectTasks lists every task of a project, following pagination.
func (c *Client) ProjectTasks(ctx context.Context, projectGID string) ([]Task, error) {
	var out []Task
	q := url.Values{"opt_fields": {ProjectTaskFields}, "limit": {"100"}}
	for {
		env, err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectGID)+"/tasks", q, nil)
		if err != nil {
			return out, err
		}
		var page []Task
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &page); err != nil {
				return out, fmt.Errorf("asana: decode project tasks: %w", err)
			}
		}
		out = append(out, page...)
		if env.NextPage == nil || env.NextPage.Offset == "" {
			return out, nil
		}
		q.Set("offset", env.NextPage.Offset)
	}
}

// CreateWebhook subscribes target to events on resourceGID.
func (c *Client) CreateWebhook(ctx context.Context, resourceGID, target string, filters []WebhookFilter) (Webhook, error) {
	body := map[string]any{
		"data": map[string]any{
			"resource": resourceGID,
			"target":   target,
			"filters":  filters,
		},
	}
	var w Webhook
	env, err := c.do(ctx, http.MethodPost, "/webhooks", nil, body)
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return w, fmt.Errorf("asana: decode webhook: %w", err)
	}
	return w, nil
}

func (c *Client) getData(ctx context.Context, path string, q url.Values, dst any) error {
	env, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ErrNotFound
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("asana: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload any) (envelope, error) {
	var env envelope
	if c == nil {
		return env, errors.New("asana: client is nil")
	}
	if c.token == "" {
		return env, ErrNoToken
	}
	var bodyBytes []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return env, err
		}
		bodyBytes = b
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return env, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries {
				if werr := sleepContext(ctx, c.retryDelay(attempt+1, "")); werr != nil {
					return env, werr
				}
				continue
			}
			return env, err
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return env, readErr
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			if err := json.Unmarshal(respBody, &env); err != nil {
				return env, fmt.Errorf("asana: decode envelope: %w", err)
			}
			return env, nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return env, ErrNotFound
		case (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries:
			if werr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); werr != nil {
				return env, werr
			}
			continue
		}

		msg := strings.TrimSpace(string(respBody))
		var parsed envelope
		if json.Unmarshal(respBody, &parsed) == nil && len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
			msg = parsed.Errors[0].Message
		}
		return env, &APIError{Status: resp.StatusCode, Message: msg}
	}
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if s, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && s > 0 {
		return min(time.Duration(s)*time.Second, c.maxDelay)
	}
	d := c.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	return min(d, c.maxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
