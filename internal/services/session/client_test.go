package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend is a scripted stand-in for the auth API. Every request is
// counted by path.
type backend struct {
	mu     sync.Mutex
	hits   map[string]int
	auths  map[string][]string
	server *httptest.Server
}

func newBackend(t *testing.T, routes map[string]http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{hits: map[string]int{}, auths: map[string][]string{}}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.auths[r.URL.Path] = append(b.auths[r.URL.Path], r.Header.Get("Authorization"))
		b.mu.Unlock()

		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *backend) authHeaders(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auths[path]...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionHandler(access, refresh string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1"},
		})
	}
}

func newTestClient(b *backend, opts ...Option) (*Client, *MemoryStore) {
	store := NewMemoryStore()
	return NewClient(b.server.URL, store, opts...), store
}

func get(t *testing.T, c *Client, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := c.FetchAuthed(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessionPersistence(t *testing.T) {
	ctx := context.Background()
	c := NewClient("http://unused", NewMemoryStore())

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, c.SetSession(ctx, &Session{AccessToken: "a", RefreshToken: "r"}))

		access, err := c.AccessToken(ctx)
		require.NoError(t, err)
		refresh, err := c.RefreshToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", access)
		assert.Equal(t, "r", refresh)
	})

	t.Run("partial update keeps refresh token", func(t *testing.T) {
		require.NoError(t, c.SetSession(ctx, &Session{AccessToken: "a2"}))

		access, _ := c.AccessToken(ctx)
		refresh, _ := c.RefreshToken(ctx)
		assert.Equal(t, "a2", access)
		assert.Equal(t, "r", refresh)
	})

	t.Run("clear removes both", func(t *testing.T) {
		require.NoError(t, c.ClearSession(ctx))

		access, _ := c.AccessToken(ctx)
		refresh, _ := c.RefreshToken(ctx)
		assert.Empty(t, access)
		assert.Empty(t, refresh)
	})

	t.Run("no store reads empty and drops writes", func(t *testing.T) {
		bare := NewClient("http://unused", nil)
		require.NoError(t, bare.SetSession(ctx, &Session{AccessToken: "a"}))
		access, err := bare.AccessToken(ctx)
		require.NoError(t, err)
		assert.Empty(t, access)
		require.NoError(t, bare.ClearSession(ctx))
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success persists session", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			loginPath: func(w http.ResponseWriter, r *http.Request) {
				var body credentialsRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "sam@example.com", body.Email)
				assert.Equal(t, "hunter2", body.Password)
				sessionHandler("access-1", "refresh-1")(w, r)
			},
		})
		c, store := newTestClient(b)

		s, err := c.Login(ctx, "sam@example.com", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "access-1", s.AccessToken)
		assert.Equal(t, "bearer", s.TokenType)
		require.NotNil(t, s.ExpiresIn)
		assert.Equal(t, int64(3600), *s.ExpiresIn)
		assert.Nil(t, s.ExpiresAt)
		assert.JSONEq(t, `{"id":"u1"}`, string(s.User))

		stored, _ := store.Get(ctx, RefreshTokenKey)
		assert.Equal(t, "refresh-1", stored)
	})

	t.Run("server message is surfaced", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			loginPath: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid login credentials"})
			},
		})
		c, _ := newTestClient(b)

		_, err := c.Login(ctx, "sam@example.com", "wrong")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
		assert.Equal(t, "Invalid login credentials", authErr.Error())
	})

	t.Run("unparseable body falls back to status", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			loginPath: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "<html>bad gateway</html>")
			},
		})
		c, _ := newTestClient(b)

		_, err := c.Login(ctx, "sam@example.com", "pw")
		require.Error(t, err)
		assert.Equal(t, "Login failed: 502", err.Error())
	})

	t.Run("network failure is returned", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", NewMemoryStore())
		_, err := c.Login(ctx, "sam@example.com", "pw")
		require.Error(t, err)
		var authErr *AuthError
		assert.False(t, errors.As(err, &authErr))
	})
}

func TestSignupWithoutAccessToken(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, map[string]http.HandlerFunc{
		signupPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  nil,
				"refresh_token": nil,
				"user":          map[string]string{"email": "new@example.com"},
			})
		},
	})
	c, store := newTestClient(b)
	require.NoError(t, store.Set(ctx, RefreshTokenKey, "older"))

	s, err := c.Signup(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	assert.False(t, s.HasAccessToken())

	stored, _ := store.Get(ctx, RefreshTokenKey)
	assert.Equal(t, "older", stored, "absent tokens must not overwrite stored ones")
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("no refresh token makes no call", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{refreshPath: sessionHandler("x", "y")})
		c, _ := newTestClient(b)

		s, err := c.Refresh(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Equal(t, 0, b.count(refreshPath))
	})

	t.Run("success persists new session", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			refreshPath: func(w http.ResponseWriter, r *http.Request) {
				var body refreshRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "r-old", body.RefreshToken)
				sessionHandler("a-new", "r-new")(w, r)
			},
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r-old"))

		s, err := c.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a-new", s.AccessToken)

		access, _ := store.Get(ctx, AccessTokenKey)
		refresh, _ := store.Get(ctx, RefreshTokenKey)
		assert.Equal(t, "a-new", access)
		assert.Equal(t, "r-new", refresh)
	})

	t.Run("rejection clears session", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			refreshPath: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			},
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, AccessTokenKey, "a"))
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		s, err := c.Refresh(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Equal(t, 1, b.count(refreshPath))

		access, _ := store.Get(ctx, AccessTokenKey)
		refresh, _ := store.Get(ctx, RefreshTokenKey)
		assert.Empty(t, access)
		assert.Empty(t, refresh)
	})

	t.Run("concurrent refreshes are coalesced", func(t *testing.T) {
		entered := make(chan struct{}, 10)
		release := make(chan struct{})
		b := newBackend(t, map[string]http.HandlerFunc{
			refreshPath: func(w http.ResponseWriter, r *http.Request) {
				entered <- struct{}{}
				<-release
				sessionHandler("a-shared", "r-shared")(w, r)
			},
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		const callers = 5
		var wg sync.WaitGroup
		results := make([]*Session, callers)
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func(i int) {
				defer wg.Done()
				s, err := c.Refresh(ctx)
				assert.NoError(t, err)
				results[i] = s
			}(i)
		}

		<-entered
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, 1, b.count(refreshPath))
		for _, s := range results {
			require.NotNil(t, s)
			assert.Equal(t, "a-shared", s.AccessToken)
		}
	})

	t.Run("cancelling the first caller does not fail the others", func(t *testing.T) {
		entered := make(chan struct{}, 10)
		release := make(chan struct{})
		b := newBackend(t, map[string]http.HandlerFunc{
			refreshPath: func(w http.ResponseWriter, r *http.Request) {
				entered <- struct{}{}
				<-release
				sessionHandler("a-shared", "r-shared")(w, r)
			},
		})
		var releaseOnce sync.Once
		t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		firstCtx, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := c.Refresh(firstCtx)
			firstErr <- err
		}()
		<-entered

		type outcome struct {
			s   *Session
			err error
		}
		joined := make(chan outcome, 1)
		go func() {
			s, err := c.Refresh(ctx)
			joined <- outcome{s, err}
		}()
		time.Sleep(50 * time.Millisecond)

		cancelFirst()
		assert.ErrorIs(t, <-firstErr, context.Canceled)

		releaseOnce.Do(func() { close(release) })
		got := <-joined
		require.NoError(t, got.err)
		require.NotNil(t, got.s)
		assert.Equal(t, "a-shared", got.s.AccessToken)
		assert.Equal(t, 1, b.count(refreshPath))

		stored, err := store.Get(ctx, AccessTokenKey)
		require.NoError(t, err)
		assert.Equal(t, "a-shared", stored)
	})

	t.Run("waiting caller honours its own cancellation", func(t *testing.T) {
		entered := make(chan struct{}, 10)
		release := make(chan struct{})
		b := newBackend(t, map[string]http.HandlerFunc{
			refreshPath: func(w http.ResponseWriter, r *http.Request) {
				entered <- struct{}{}
				<-release
				sessionHandler("a-late", "r-late")(w, r)
			},
		})
		t.Cleanup(func() { close(release) })
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		go func() { _, _ = c.Refresh(ctx) }()
		<-entered

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		s, err := c.Refresh(waitCtx)

		assert.Nil(t, s)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestFetchAuthed(t *testing.T) {
	ctx := context.Background()

	t.Run("persistent 401 stops after one retry", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			"/drills/d1": func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
			},
			refreshPath: sessionHandler("a-new", "r-new"),
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, AccessTokenKey, "a-old"))
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r-old"))

		resp := get(t, c, b.server.URL+"/drills/d1")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 2, b.count("/drills/d1"))
		assert.Equal(t, 1, b.count(refreshPath))
		assert.Equal(t, []string{"Bearer a-old", "Bearer a-new"}, b.authHeaders("/drills/d1"))
	})

	t.Run("401 then success returns retried response", func(t *testing.T) {
		var calls int32
		b := newBackend(t, map[string]http.HandlerFunc{
			"/progress/lessons": func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"lesson_id":"l1"}`, string(body), "body must be replayed")
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
			},
			refreshPath: sessionHandler("a-new", "r-new"),
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, AccessTokenKey, "a-old"))
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r-old"))

		req, err := http.NewRequest(http.MethodPost, b.server.URL+"/progress/lessons", strings.NewReader(`{"lesson_id":"l1"}`))
		require.NoError(t, err)
		resp, err := c.FetchAuthed(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		access, _ := store.Get(ctx, AccessTokenKey)
		assert.Equal(t, "a-new", access)
	})

	t.Run("unbuffered body is replayed", func(t *testing.T) {
		var calls int32
		b := newBackend(t, map[string]http.HandlerFunc{
			"/tts": func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, "hello", string(body))
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusOK)
			},
			refreshPath: sessionHandler("a-new", ""),
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		req, err := http.NewRequest(http.MethodPost, b.server.URL+"/tts", io.NopCloser(strings.NewReader("hello")))
		require.NoError(t, err)
		require.Nil(t, req.GetBody)

		resp, err := c.FetchAuthed(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("failed refresh returns original 401", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			"/lessons": func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "first"})
			},
		})
		c, _ := newTestClient(b)

		resp := get(t, c, b.server.URL+"/lessons")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "first")
		assert.Equal(t, 1, b.count("/lessons"))
		assert.Equal(t, 0, b.count(refreshPath))
	})

	t.Run("other statuses are not retried", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			"/news/feed": func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			refreshPath: sessionHandler("a", "r"),
		})
		c, store := newTestClient(b)
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		resp := get(t, c, b.server.URL+"/news/feed")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, 1, b.count("/news/feed"))
		assert.Equal(t, 0, b.count(refreshPath))
	})

	t.Run("no token omits authorization header", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{
			"/news/brief": func(w http.ResponseWriter, r *http.Request) {
				assert.NotEmpty(t, r.Header.Get(requestIDHeader))
				w.WriteHeader(http.StatusOK)
			},
		})
		c, _ := newTestClient(b)

		get(t, c, b.server.URL+"/news/brief")
		assert.Equal(t, []string{""}, b.authHeaders("/news/brief"))
	})
}

func TestRequireAuthOrRedirect(t *testing.T) {
	ctx := context.Background()

	recorder := func() (Navigator, *[]string) {
		var targets []string
		return NavigatorFunc(func(_ context.Context, target string) {
			targets = append(targets, target)
		}), &targets
	}

	t.Run("stored token is enough", func(t *testing.T) {
		b := newBackend(t, nil)
		nav, targets := recorder()
		c, store := newTestClient(b, WithNavigator(nav))
		require.NoError(t, store.Set(ctx, AccessTokenKey, "a"))

		ok, err := c.RequireAuthOrRedirect(ctx, "/login")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, *targets)
		assert.Equal(t, 0, b.count(refreshPath))
	})

	t.Run("refresh recovers", func(t *testing.T) {
		b := newBackend(t, map[string]http.HandlerFunc{refreshPath: sessionHandler("a-new", "r-new")})
		nav, targets := recorder()
		c, store := newTestClient(b, WithNavigator(nav))
		require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

		ok, err := c.RequireAuthOrRedirect(ctx, "/login")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, *targets)
	})

	t.Run("redirects when nothing works", func(t *testing.T) {
		b := newBackend(t, nil)
		nav, targets := recorder()
		c, _ := newTestClient(b, WithNavigator(nav))

		ok, err := c.RequireAuthOrRedirect(ctx, "/login?next=/practice")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"/login?next=/practice"}, *targets)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, map[string]http.HandlerFunc{
		logoutPath: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	c, store := newTestClient(b)
	require.NoError(t, store.Set(ctx, AccessTokenKey, "a"))
	require.NoError(t, store.Set(ctx, RefreshTokenKey, "r"))

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, []string{"Bearer a"}, b.authHeaders(logoutPath))

	access, _ := store.Get(ctx, AccessTokenKey)
	assert.Empty(t, access)

	t.Run("unreachable backend still clears", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", store)
		require.NoError(t, store.Set(ctx, AccessTokenKey, "a"))
		require.NoError(t, c.Logout(ctx))
		access, _ := store.Get(ctx, AccessTokenKey)
		assert.Empty(t, access)
	})
}

func TestLastDrillID(t *testing.T) {
	ctx := context.Background()
	c := NewClient("http://unused", NewMemoryStore())

	require.NoError(t, c.SetLastDrillID(ctx, "drill-7"))
	id, err := c.LastDrillID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "drill-7", id)

	require.NoError(t, c.ClearSession(ctx))
	id, _ = c.LastDrillID(ctx)
	assert.Equal(t, "drill-7", id, "logout does not forget the drill to resume")

	require.NoError(t, c.ClearLastDrillID(ctx))
	id, _ = c.LastDrillID(ctx)
	assert.Empty(t, id)
}

func TestSessionClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: "sam@example.com",
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)

	claims, err := (&Session{AccessToken: token}).Claims()
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "sam@example.com", claims.Email)
	assert.True(t, claims.ExpiresAt.Equal(exp))

	_, err = (&Session{}).Claims()
	assert.ErrorIs(t, err, ErrNoAccessToken)

	_, err = (&Session{AccessToken: "opaque"}).Claims()
	assert.Error(t, err)
}
