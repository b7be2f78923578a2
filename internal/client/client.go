package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/storm/internal/logger"
)

const DefaultTimeout = 10 * time.Second

// 401 codes that mean 'access token expired, refresh may help'
// A 401 without code is treated the same way
const codeTokenExpired = "token_expired"

type Config struct {
	// Server address, e.g. http://localhost:8000
	BaseURL string

	// Default: http.Client with Timeout
	HTTPClient *http.Client

	// Request timeout. Default: DefaultTimeout
	Timeout time.Duration

	// Called once when session cleared cause refresh failed
	OnSessionExpired func()

	Logger logger.Logger
}

// Client sends requests on behalf of the logged in user
// On expired access token it refreshes the session once and retries the request
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	store     Store
	onExpired func()
	logger    logger.Logger

	refreshGroup singleflight.Group

	mu      sync.Mutex
	session Session

	// Bumped every time the session is replaced or cleared (login, logout, refresh failure)
	generation uint64
}

// New creates client and restores the session from the store
func New(cfg Config, store Store) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if store == nil {
		store = &MemoryStore{}
	}

	session, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      cfg.HTTPClient,
		timeout:   cfg.Timeout,
		store:     store,
		onExpired: cfg.OnSessionExpired,
		logger:    cfg.Logger,
		session:   session,
	}, nil
}

// Session returns copy of the current session
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.IsAuthenticated && c.session.Token != ""
}

type snapshot struct {
	token      string
	refresh    string
	generation uint64
}

func (c *Client) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot{token: c.session.Token, refresh: c.session.RefreshToken, generation: c.generation}
}

// Do sends request with current access token
// On 401 caused by expired token refreshes the session and retries the request once.
// Requests with body are retried only if req.GetBody is set (http.NewRequest does it for common readers)
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	s := c.snapshot()
	return c.do(ctx, req, s, 0)
}

func (c *Client) do(ctx context.Context, req *http.Request, s snapshot, attempt int) (*http.Response, error) {
	r, err := prepare(ctx, req, s.token, attempt)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || attempt > 0 || s.refresh == "" || !retriable(req) {
		return resp, nil
	}

	code, resp, err := authErrorCode(resp)
	if err != nil {
		return nil, err
	}
	if code != "" && code != codeTokenExpired {
		return resp, nil
	}
	_ = resp.Body.Close()

	c.logger.Debug("Access token rejected, refreshing session", "path", req.URL.Path, "code", code)

	if err := c.refresh(ctx, s); err != nil {
		return nil, err
	}

	// Session may be closed while we were waiting
	next := c.snapshot()
	if next.generation != s.generation {
		return nil, ErrSessionClosed
	}

	return c.do(ctx, req, next, attempt+1)
}

// Clone request for the attempt with the token attached
func prepare(ctx context.Context, req *http.Request, token string, attempt int) (*http.Request, error) {
	r := req.Clone(ctx)

	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}

	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r, nil
}

func retriable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// Read 401 code from response and return the response with body that can be read again
func authErrorCode(resp *http.Response) (string, *http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var e errorResponse
	_ = json.Unmarshal(body, &e)
	return e.Code, resp, nil
}

// Refresh the session once for all concurrent callers that saw the same stale token
func (c *Client) refresh(ctx context.Context, stale snapshot) error {
	current := c.snapshot()
	switch {
	case current.generation != stale.generation:
		return ErrSessionClosed
	case current.token != stale.token:
		// Already refreshed by someone else
		return nil
	}

	// Shared refresh must not be cancelled by the first caller leaving
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan(stale.refresh, func() (any, error) {
		return nil, c.exchange(refreshCtx, stale)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) exchange(ctx context.Context, stale snapshot) error {
	// Previous flight may have finished and rotated the token already
	c.mu.Lock()
	switch {
	case c.generation != stale.generation:
		c.mu.Unlock()
		return ErrSessionClosed
	case c.session.RefreshToken != stale.refresh:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var pair tokenPair
	err := c.send(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: stale.refresh}, &pair)

	c.mu.Lock()
	if c.generation != stale.generation {
		c.mu.Unlock()
		c.logger.Debug("Session closed while refreshing, refresh result dropped")
		return ErrSessionClosed
	}

	if err != nil {
		c.clearLocked()
		c.mu.Unlock()

		c.logger.Warn("Session refresh failed, session cleared", "error", err)
		if c.onExpired != nil {
			c.onExpired()
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.session.Token = pair.AccessToken
	c.session.RefreshToken = pair.RefreshToken
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Debug("Session refreshed")
	return nil
}

// Must be called with c.mu held
func (c *Client) clearLocked() {
	c.session = Session{}
	c.generation++
	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear stored session", "error", err)
	}
}

// Must be called with c.mu held, so logout can't be overtaken by a late save
func (c *Client) persistLocked() {
	if err := c.store.Save(c.session); err != nil {
		c.logger.Error("Failed to save session", "error", err)
	}
}

// Send json request without session handling
// token is attached if not empty
func (c *Client) send(ctx context.Context, method string, path string, token string, in any, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return decodeResponse(resp, out)
}

// Send json request with the session token
func (c *Client) call(ctx context.Context, method string, path string, in any, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) newRequest(ctx context.Context, method string, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Type: e.Error, Code: e.Code, Message: e.Message, Fields: e.Fields}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
