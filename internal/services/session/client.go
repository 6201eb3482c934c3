package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/deepgram/connected/pkg/httpext"
	"github.com/deepgram/connected/pkg/logger"
)

const (
	signupPath  = "/auth/signup"
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"

	requestIDHeader = "X-Request-ID"
)

// Navigator performs the client-side redirect used when a caller is not
// authenticated and a refresh cannot recover.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) {
	f(ctx, target)
}

type logNavigator struct{}

func (logNavigator) Navigate(_ context.Context, target string) {
	logger.Warn(logger.SESSION, "Not authenticated - redirecting to %s", target)
}

// Client owns the persisted credentials and makes authenticated calls
// to the backend.
type Client struct {
	baseURL   string
	client    *http.Client
	store     Store
	navigator Navigator
	refreshes singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.navigator = n
		}
	}
}

// NewClient returns a Client talking to baseURL. A nil store behaves like
// an environment without durable storage: reads return nothing and writes
// are dropped.
func NewClient(baseURL string, store Store, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		store:     store,
		navigator: logNavigator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Navigator returns the redirect target handler, so other components can
// send callers to the same place.
func (c *Client) Navigator() Navigator {
	return c.navigator
}

func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.get(ctx, AccessTokenKey)
}

func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	return c.get(ctx, RefreshTokenKey)
}

func (c *Client) get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", nil
	}
	value, err := c.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// SetSession persists whichever tokens s carries. An absent token leaves
// the stored value alone.
func (c *Client) SetSession(ctx context.Context, s *Session) error {
	if c.store == nil || s == nil {
		return nil
	}
	if s.AccessToken != "" {
		if err := c.store.Set(ctx, AccessTokenKey, s.AccessToken); err != nil {
			return fmt.Errorf("failed to store access token: %w", err)
		}
	}
	if s.RefreshToken != "" {
		if err := c.store.Set(ctx, RefreshTokenKey, s.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	return nil
}

func (c *Client) ClearSession(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, AccessTokenKey, RefreshTokenKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	logger.Debug(logger.SESSION, "Cleared stored session")
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "Login", loginPath, email, password)
}

// Signup registers a new account. A session without an access token is a
// valid result: the backend is waiting for the user to confirm their email.
func (c *Client) Signup(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "Signup", signupPath, email, password)
}

func (c *Client) authenticate(ctx context.Context, op, path, email, password string) (*Session, error) {
	status, body, err := c.postJSON(ctx, path, credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		logger.Warn(logger.SESSION, "%s rejected with status %d", op, status)
		return nil, &AuthError{
			Op:         op,
			StatusCode: status,
			Message:    httpext.ErrorMessage(body, fmt.Sprintf("%s failed: %d", op, status)),
		}
	}

	s := decodeSession(body)
	if err := c.SetSession(ctx, s); err != nil {
		return nil, err
	}
	logSession(op, s)
	return s, nil
}

// Refresh exchanges the stored refresh token for a new session. It returns
// nil without touching the network when no refresh token is stored, and
// clears the stored session when the backend rejects the token. Concurrent
// callers share one in-flight refresh; the shared call is not cancelled by
// any one caller, and each caller stops waiting when its own ctx is done.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan("refresh", func() (interface{}, error) {
		return c.refresh(shared)
	})

	select {
	case <-ctx.Done():
		logger.Debug(logger.SESSION, "Stopped waiting for token refresh: %v", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debug(logger.SESSION, "Joined in-flight token refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		s, _ := res.Val.(*Session)
		return s, nil
	}
}

func (c *Client) refresh(ctx context.Context) (*Session, error) {
	rt, err := c.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	if rt == "" {
		logger.Debug(logger.SESSION, "No refresh token stored - skipping refresh")
		return nil, nil
	}

	status, body, err := c.postJSON(ctx, refreshPath, refreshRequest{RefreshToken: rt})
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		logger.Warn(logger.SESSION, "Token refresh rejected with status %d - clearing session", status)
		if err := c.ClearSession(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	s := decodeSession(body)
	if err := c.SetSession(ctx, s); err != nil {
		return nil, err
	}
	logSession("Refresh", s)
	return s, nil
}

type attempt int

const (
	attemptInitial attempt = iota
	attemptRetried
)

// FetchAuthed sends req with the stored bearer token. A 401 triggers one
// refresh; when that yields a new access token the request is replayed
// once and the second response is returned whatever its status. Without a
// new token the original 401 is returned.
func (c *Client) FetchAuthed(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	state := attemptInitial
	for {
		resp, err := c.send(req, token)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized || state == attemptRetried {
			return resp, nil
		}

		logger.Debug(logger.SESSION, "%s %s returned 401 - attempting refresh", req.Method, req.URL.Path)
		refreshed, err := c.Refresh(ctx)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if !refreshed.HasAccessToken() {
			return resp, nil
		}

		drain(resp)
		token = refreshed.AccessToken
		state = attemptRetried
	}
}

// RequireAuthOrRedirect reports whether an access token is available,
// trying one refresh when none is stored. When neither works the
// navigator is sent to redirectTarget. The token itself is not validated.
func (c *Client) RequireAuthOrRedirect(ctx context.Context, redirectTarget string) (bool, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	if token != "" {
		return true, nil
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil {
		return false, err
	}
	if refreshed.HasAccessToken() {
		return true, nil
	}

	c.navigator.Navigate(ctx, redirectTarget)
	return false, nil
}

// Logout tells the backend to revoke the session and clears local
// credentials. The backend call is best-effort.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logoutPath, nil)
	if err == nil {
		var resp *http.Response
		resp, err = c.FetchAuthed(req)
		if err == nil {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				logger.Warn(logger.SESSION, "Logout returned status %d", resp.StatusCode)
			}
			drain(resp)
		}
	}
	if err != nil {
		logger.Warn(logger.SESSION, "Logout request failed: %v", err)
	}

	return c.ClearSession(ctx)
}

func (c *Client) SetLastDrillID(ctx context.Context, id string) error {
	if c.store == nil || id == "" {
		return nil
	}
	return c.store.Set(ctx, LastDrillKey, id)
}

func (c *Client) LastDrillID(ctx context.Context) (string, error) {
	return c.get(ctx, LastDrillKey)
}

func (c *Client) ClearLastDrillID(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Delete(ctx, LastDrillKey)
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}

	out.Header.Del("Authorization")
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.New().String())
	}

	resp, err := c.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func logSession(op string, s *Session) {
	if !s.HasAccessToken() {
		logger.Info(logger.SESSION, "%s succeeded without an access token", op)
		return
	}
	claims, err := s.Claims()
	if err != nil {
		logger.Info(logger.SESSION, "%s succeeded", op)
		return
	}
	logger.Info(logger.SESSION, "%s succeeded for subject %q, token expires %s",
		op, claims.Subject, claims.ExpiresAt.Format(time.RFC3339))
}
