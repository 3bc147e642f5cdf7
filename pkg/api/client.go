package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/receiptly/receiptly-go/chat"
	"github.com/receiptly/receiptly-go/internal/observability"
	pubobs "github.com/receiptly/receiptly-go/pkg/observability"
)

const defaultMaxRetries = 3

// Client talks to the Receiptly REST API. Authentication rides on the
// session cookie, so the client keeps a cookie jar the way the browser
// front-end relies on withCredentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget for retryable failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. "http://localhost:8000/api/v1").
func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListSessions fetches the user's chat sessions, server-ordered.
func (c *Client) ListSessions(ctx context.Context) ([]chat.Session, error) {
	var sessions []chat.Session
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one session record.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SessionMessages fetches the persisted history of a session. Callers
// re-sort by creation time rather than trusting server order.
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var msgs []chat.Message
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteSession removes a session server-side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	if err := c.do(ctx, http.MethodDelete, "/chat/sessions/"+url.PathEscape(sessionID), nil, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Ping probes the session listing endpoint as a cheap reachability
// check for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	var sessions []chat.Session
	return c.do(ctx, http.MethodGet, "/chat/sessions", nil, &sessions)
}

// do performs one JSON request with bounded retries on 429/5xx and
// network errors, exponential backoff between attempts.
func (c *Client) do(ctx context.Context, method, path string, reqBody, result any) error {
	endpoint := path
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	ctx, span := observability.StartSpan(ctx, "api"+endpoint,
		attribute.String("http.method", method))
	defer span.End()

	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return newError(path, 0, "encode request", err)
		}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return newError(path, 0, "cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return newError(path, 0, "build request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = newError(path, 0, "request failed", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = readError(path, resp)
			_ = resp.Body.Close()
			continue
		}

		err = c.finish(path, resp, result)
		pubobs.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
		return err
	}

	pubobs.RecordAPIRequest(endpoint, "error", time.Since(start))
	return lastErr
}

// finish decodes a terminal (non-retryable) response.
func (c *Client) finish(path string, resp *http.Response, result any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return newError(path, resp.StatusCode, "not found", ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readError(path, resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return newError(path, resp.StatusCode, "decode response", err)
	}
	return nil
}

// readError extracts an error body, tolerating non-JSON payloads.
func readError(path string, resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Detail != "" {
			msg = payload.Detail
		} else if payload.Message != "" {
			msg = payload.Message
		}
	}
	return newError(path, resp.StatusCode, msg, nil)
}
