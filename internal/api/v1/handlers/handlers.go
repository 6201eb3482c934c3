package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/deepgram/connected/internal/services/drill"
	"github.com/deepgram/connected/internal/services/session"
	"github.com/deepgram/connected/pkg/httpext"
	"github.com/deepgram/connected/pkg/logger"
)

// SessionManager is the part of session.Client the handlers use
type SessionManager interface {
	Login(ctx context.Context, email, password string) (*session.Session, error)
	Signup(ctx context.Context, email, password string) (*session.Session, error)
	Logout(ctx context.Context) error
	AccessToken(ctx context.Context) (string, error)
	RequireAuthOrRedirect(ctx context.Context, redirectTarget string) (bool, error)
	SetLastDrillID(ctx context.Context, id string) error
	LastDrillID(ctx context.Context) (string, error)
	ClearLastDrillID(ctx context.Context) error
}

type DrillService interface {
	Start(ctx context.Context, req drill.StartRequest) (*drill.StartResponse, error)
	Complete(ctx context.Context, id string, transcript []drill.Turn) error
}

type FeedbackPoller interface {
	Run(ctx context.Context, id string, observe func(drill.Update)) (*drill.Result, error)
}

// HandleHealth reports liveness
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeUnauthenticated(w http.ResponseWriter, loginPath string) {
	httpext.JsonErrorWithDetails(w, http.StatusUnauthorized, httpext.ErrorResponse{
		Error:    "Not authenticated",
		Redirect: loginPath,
	})
}

// writeUpstreamError maps a backend failure onto a response. Client errors
// from the backend pass through; everything else is a bad gateway.
func writeUpstreamError(w http.ResponseWriter, err error, loginPath string) {
	if drill.IsUnauthorized(err) {
		writeUnauthenticated(w, loginPath)
		return
	}

	status := http.StatusBadGateway
	var statusErr *drill.StatusError
	var authErr *session.AuthError
	switch {
	case errors.As(err, &statusErr):
		status = passThrough(statusErr.StatusCode)
	case errors.As(err, &authErr):
		status = passThrough(authErr.StatusCode)
	}

	logger.Warn(logger.HANDLER, "Upstream request failed with %d: %v", status, err)
	httpext.JsonError(w, err.Error(), status)
}

func passThrough(code int) int {
	if code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

// forgetFinishedDrill stops offering drill id for resume once its feedback
// has settled. A redirect ends polling but leaves the drill unfinished, and
// a newer drill started meanwhile is left alone.
func forgetFinishedDrill(ctx context.Context, sessions SessionManager, id string, res *drill.Result) {
	if res == nil || !res.State.IsTerminal() || res.State == drill.StateRedirected {
		return
	}

	last, err := sessions.LastDrillID(ctx)
	if err != nil {
		logger.Warn(logger.HANDLER, "Failed to read last drill: %v", err)
		return
	}
	if last != id {
		return
	}
	if err := sessions.ClearLastDrillID(ctx); err != nil {
		logger.Warn(logger.HANDLER, "Failed to forget finished drill %s: %v", id, err)
		return
	}
	logger.Debug(logger.HANDLER, "Drill %s settled as %s - no longer offered for resume", id, res.State)
}
