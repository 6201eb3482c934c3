package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the credential pair returned by the auth endpoints. Empty
// strings stand for absent tokens.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type,omitempty"`
	ExpiresIn    *int64          `json:"expires_in,omitempty"`
	ExpiresAt    *int64          `json:"expires_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// HasAccessToken reports whether the session carries a bearer credential.
// Signup can legitimately return a session without one while the account
// waits for email confirmation.
func (s *Session) HasAccessToken() bool {
	return s != nil && s.AccessToken != ""
}

// TokenClaims is what we can read from an access token without the
// backend's signing key.
type TokenClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Claims peeks at the access token payload. The signature is not checked;
// the values are informational only.
func (s *Session) Claims() (TokenClaims, error) {
	if !s.HasAccessToken() {
		return TokenClaims{}, ErrNoAccessToken
	}
	return parseClaims(s.AccessToken)
}

func parseClaims(token string) (TokenClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, err
	}

	out := TokenClaims{Subject: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// AuthError is returned by Login and Signup on a non-2xx response.
type AuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

var ErrNoAccessToken = errors.New("session: no access token")

// decodeSession normalises an auth response body. Missing or mistyped
// fields come back empty rather than failing the call.
func decodeSession(body []byte) *Session {
	s := &Session{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return s
	}

	s.AccessToken = rawString(raw["access_token"])
	s.RefreshToken = rawString(raw["refresh_token"])
	s.TokenType = rawString(raw["token_type"])
	s.ExpiresIn = rawInt(raw["expires_in"])
	s.ExpiresAt = rawInt(raw["expires_at"])
	if user, ok := raw["user"]; ok && string(user) != "null" {
		s.User = user
	}
	return s
}

func rawString(v json.RawMessage) string {
	var out string
	if len(v) == 0 || json.Unmarshal(v, &out) != nil {
		return ""
	}
	return out
}

func rawInt(v json.RawMessage) *int64 {
	var f float64
	if len(v) == 0 || json.Unmarshal(v, &f) != nil {
		return nil
	}
	n := int64(f)
	return &n
}
