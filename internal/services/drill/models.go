package drill

import (
	"encoding/json"
	"strings"
)

const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	ProviderText = "text"
	ProviderVapi = "vapi"
)

// Drill is a snapshot of a server-owned practice session. It is never
// modified locally.
type Drill struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider,omitempty"`
	Status         string            `json:"status,omitempty"`
	Setting        string            `json:"setting,omitempty"`
	Goal           string            `json:"goal,omitempty"`
	Person         string            `json:"person,omitempty"`
	TimeBudget     string            `json:"time_budget,omitempty"`
	LessonIDs      []string          `json:"lesson_ids,omitempty"`
	Prompt         *Prompt           `json:"prompt,omitempty"`
	Events         []json.RawMessage `json:"events,omitempty"`
	Transcript     Transcript        `json:"transcript"`
	Feedback       string            `json:"feedback,omitempty"`
	VapiCallID     string            `json:"vapi_call_id,omitempty"`
	CoachSessionID string            `json:"coach_session_id,omitempty"`
	UpdatedAt      string            `json:"updated_at,omitempty"`
}

// IsTerminal reports whether the drill has finished. Unknown statuses are
// treated as still running.
func (d *Drill) IsTerminal() bool {
	switch strings.ToLower(strings.TrimSpace(d.Status)) {
	case StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (d *Drill) HasFeedback() bool {
	return strings.TrimSpace(d.Feedback) != ""
}

type Prompt struct {
	Version    string      `json:"version,omitempty"`
	Setting    string      `json:"setting,omitempty"`
	Goal       string      `json:"goal,omitempty"`
	Persona    string      `json:"persona,omitempty"`
	Objective  string      `json:"objective,omitempty"`
	Rubric     []string    `json:"rubric,omitempty"`
	LessonRefs []LessonRef `json:"lesson_refs,omitempty"`
	Opener     string      `json:"opener,omitempty"`
}

type LessonRef struct {
	LessonID   string `json:"lesson_id,omitempty"`
	LessonType string `json:"lesson_type,omitempty"`
	Title      string `json:"title,omitempty"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type StartRequest struct {
	Provider    string   `json:"provider"`
	Setting     string   `json:"setting"`
	Goal        string   `json:"goal"`
	Person      string   `json:"person"`
	TimeBudget  string   `json:"time_budget"`
	Constraints *string  `json:"constraints"`
	LessonIDs   []string `json:"lesson_ids"`
}

type VapiConfig struct {
	WebhookURL string                 `json:"webhook_url,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Assistant  *struct {
		SystemPrompt string `json:"system_prompt,omitempty"`
	} `json:"assistant,omitempty"`
}

type StartResponse struct {
	DrillSessionID string      `json:"drill_session_id"`
	CoachSessionID string      `json:"coach_session_id,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	Prompt         *Prompt     `json:"prompt,omitempty"`
	Vapi           *VapiConfig `json:"vapi,omitempty"`
}

type completeRequest struct {
	Transcript []Turn `json:"transcript"`
}
