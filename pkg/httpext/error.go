package httpext

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/deepgram/connected/pkg/logger"
)

// ErrorResponse represents a standardised JSON error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Redirect         string `json:"redirect,omitempty"`
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{Error: message})
}

// JsonErrorWithDetails writes a detailed JSON error response
func JsonErrorWithDetails(w http.ResponseWriter, code int, errResp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error(logger.HANDLER, "Failed to encode error response: %v", err)
	}
}

// JsonResponse writes v as a JSON body with the given status code
func JsonResponse(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(logger.HANDLER, "Failed to encode response: %v", err)
	}
}

// ErrorMessage extracts a human readable message from an upstream error
// body. A bare JSON string wins, then "detail", then "message". Anything
// else falls back to the supplied message.
func ErrorMessage(body []byte, fallback string) string {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fallback
	}

	switch v := decoded.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case map[string]interface{}:
		for _, key := range []string{"detail", "message"} {
			if msg := messageValue(v[key]); msg != "" {
				return msg
			}
		}
	}
	return fallback
}

func messageValue(v interface{}) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return m
	default:
		// FastAPI validation errors put a list under "detail".
		raw, err := json.Marshal(m)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
