package drill

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

	"github.com/deepgram/connected/pkg/httpext"
	"github.com/deepgram/connected/pkg/logger"
)

// AuthedClient performs backend calls carrying the user's credentials.
// *session.Client satisfies it.
type AuthedClient interface {
	FetchAuthed(req *http.Request) (*http.Response, error)
	BaseURL() string
}

type Service struct {
	client AuthedClient
}

func NewService(client AuthedClient) *Service {
	logger.Info(logger.DRILL, "Initialising drill service")
	return &Service{client: client}
}

// StatusError is a non-2xx answer from the drill endpoints.
type StatusError struct {
	Action     string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized
}

// Get fetches the current snapshot of a drill.
func (s *Service) Get(ctx context.Context, id string) (*Drill, error) {
	var d Drill
	if err := s.do(ctx, http.MethodGet, "/drills/"+url.PathEscape(id), nil, "Failed to load drill", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Start asks the backend to open a new drill. Unknown providers are sent
// as voice drills, matching the backend's own default.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != ProviderText && provider != ProviderVapi {
		provider = ProviderVapi
	}
	req.Provider = provider
	if req.LessonIDs == nil {
		req.LessonIDs = []string{}
	}
	if req.Constraints != nil && strings.TrimSpace(*req.Constraints) == "" {
		req.Constraints = nil
	}

	var out StartResponse
	if err := s.do(ctx, http.MethodPost, "/mascot/drill/start", req, "Failed to start drill", &out); err != nil {
		return nil, err
	}
	if out.DrillSessionID == "" {
		return nil, fmt.Errorf("start drill: response carried no drill_session_id")
	}
	logger.Info(logger.DRILL, "Started %s drill %s", provider, out.DrillSessionID)
	return &out, nil
}

// Complete marks a text drill finished, handing over the transcript the
// backend needs to produce feedback.
func (s *Service) Complete(ctx context.Context, id string, transcript []Turn) error {
	if transcript == nil {
		transcript = []Turn{}
	}
	return s.do(ctx, http.MethodPost, "/drills/"+url.PathEscape(id)+"/complete",
		completeRequest{Transcript: transcript}, "Failed to complete drill", nil)
}

func (s *Service) do(ctx context.Context, method, path string, payload interface{}, action string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.FetchAuthed(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debug(logger.DRILL, "%s %s returned %d", method, path, resp.StatusCode)
		return &StatusError{
			Action:     action,
			StatusCode: resp.StatusCode,
			Message:    httpext.ErrorMessage(respBody, fmt.Sprintf("%s: %d", action, resp.StatusCode)),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
