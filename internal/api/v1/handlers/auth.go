package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/deepgram/connected/internal/services/session"
	"github.com/deepgram/connected/pkg/httpext"
	"github.com/deepgram/connected/pkg/logger"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse never carries the tokens themselves; they stay in the
// session store.
type authResponse struct {
	Authenticated bool            `json:"authenticated"`
	CheckEmail    bool            `json:"check_email"`
	User          json.RawMessage `json:"user,omitempty"`
	ExpiresAt     *int64          `json:"expires_at,omitempty"`
}

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	Email         string `json:"email,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

func HandleLogin(sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	handleCredentials("Login", sessions.Login, w, r)
}

func HandleSignup(sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	handleCredentials("Signup", sessions.Signup, w, r)
}

func handleCredentials(op string, authenticate func(ctx context.Context, email, password string) (*session.Session, error), w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(logger.HANDLER, "Failed to decode %s request: %v", op, err)
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httpext.JsonError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	s, err := authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeUpstreamError(w, err, "")
		return
	}

	httpext.JsonResponse(w, http.StatusOK, authResponse{
		Authenticated: s.HasAccessToken(),
		CheckEmail:    !s.HasAccessToken(),
		User:          s.User,
		ExpiresAt:     s.ExpiresAt,
	})
}

func HandleLogout(sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	if err := sessions.Logout(r.Context()); err != nil {
		logger.Error(logger.HANDLER, "Failed to clear session: %v", err)
		httpext.JsonError(w, "Failed to clear session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuthStatus reports whether a session is available, refreshing once
// if needed. Unauthenticated callers get a 401 naming the login page.
func HandleAuthStatus(sessions SessionManager, loginPath string, w http.ResponseWriter, r *http.Request) {
	ok, err := sessions.RequireAuthOrRedirect(r.Context(), loginPath)
	if err != nil {
		logger.Error(logger.HANDLER, "Failed to check session: %v", err)
		httpext.JsonError(w, "Failed to check session", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeUnauthenticated(w, loginPath)
		return
	}

	resp := statusResponse{Authenticated: true}
	token, err := sessions.AccessToken(r.Context())
	if err == nil {
		if claims, err := (&session.Session{AccessToken: token}).Claims(); err == nil {
			resp.Subject = claims.Subject
			resp.Email = claims.Email
			if !claims.ExpiresAt.IsZero() {
				resp.ExpiresAt = claims.ExpiresAt.Unix()
			}
		} else {
			logger.Debug(logger.HANDLER, "Access token is not a readable JWT: %v", err)
		}
	}

	httpext.JsonResponse(w, http.StatusOK, resp)
}
