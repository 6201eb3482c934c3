package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/deepgram/connected/internal/services/drill"
	"github.com/deepgram/connected/pkg/httpext"
	"github.com/deepgram/connected/pkg/logger"
)

type completeRequest struct {
	Transcript []drill.Turn `json:"transcript"`
}

// HandleStartDrill opens a drill and remembers it so the practice page can
// resume it later.
func HandleStartDrill(sessions SessionManager, drills DrillService, loginPath string, w http.ResponseWriter, r *http.Request) {
	var req drill.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(logger.HANDLER, "Failed to decode start drill request: %v", err)
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	resp, err := drills.Start(r.Context(), req)
	if err != nil {
		writeUpstreamError(w, err, loginPath)
		return
	}

	if err := sessions.SetLastDrillID(r.Context(), resp.DrillSessionID); err != nil {
		logger.Warn(logger.HANDLER, "Failed to remember drill %s: %v", resp.DrillSessionID, err)
	}

	httpext.JsonResponse(w, http.StatusCreated, resp)
}

func HandleLastDrill(sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	id, err := sessions.LastDrillID(r.Context())
	if err != nil {
		logger.Error(logger.HANDLER, "Failed to read last drill: %v", err)
		httpext.JsonError(w, "Failed to read last drill", http.StatusInternalServerError)
		return
	}
	if id == "" {
		httpext.JsonError(w, "No drill in progress", http.StatusNotFound)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]string{"drill_session_id": id})
}

func HandleCompleteDrill(drills DrillService, loginPath string, w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(logger.HANDLER, "Failed to decode complete drill request: %v", err)
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := drills.Complete(r.Context(), id, req.Transcript); err != nil {
		writeUpstreamError(w, err, loginPath)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDrillFeedback blocks until the drill's feedback settles, then
// returns the poller's result.
func HandleDrillFeedback(sessions SessionManager, poller FeedbackPoller, w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	res, err := poller.Run(r.Context(), id, nil)
	switch {
	case errors.Is(err, drill.ErrNoDrillID):
		httpext.JsonError(w, "Missing drill id", http.StatusBadRequest)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug(logger.HANDLER, "Feedback request for drill %s abandoned: %v", id, err)
		return
	case err != nil:
		logger.Error(logger.HANDLER, "Feedback polling for drill %s failed: %v", id, err)
		httpext.JsonError(w, "Failed to load feedback", http.StatusInternalServerError)
		return
	}

	if res.State == drill.StateRedirected {
		writeUnauthenticated(w, res.Redirect)
		return
	}

	forgetFinishedDrill(r.Context(), sessions, id, res)
	httpext.JsonResponse(w, http.StatusOK, res)
}
