package drill

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes a drill record field by field. A field of the
// wrong type comes back empty instead of failing the whole snapshot, so a
// single odd value cannot stall polling. Only a body that is not a JSON
// object is an error.
func (d *Drill) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("drill record is not an object: %w", err)
	}

	*d = Drill{
		ID:             scalarText(raw["id"]),
		Provider:       scalarText(raw["provider"]),
		Status:         scalarText(raw["status"]),
		Setting:        scalarText(raw["setting"]),
		Goal:           scalarText(raw["goal"]),
		Person:         scalarText(raw["person"]),
		TimeBudget:     scalarText(raw["time_budget"]),
		LessonIDs:      textList(raw["lesson_ids"]),
		Prompt:         decodePrompt(raw["prompt"]),
		Events:         rawList(raw["events"]),
		Transcript:     parseTranscript(raw["transcript"]),
		Feedback:       scalarText(raw["feedback"]),
		VapiCallID:     scalarText(raw["vapi_call_id"]),
		CoachSessionID: scalarText(raw["coach_session_id"]),
		UpdatedAt:      scalarText(raw["updated_at"]),
	}
	return nil
}

func (p *Prompt) UnmarshalJSON(data []byte) error {
	if decoded := decodePrompt(data); decoded != nil {
		*p = *decoded
	} else {
		*p = Prompt{}
	}
	return nil
}

func decodePrompt(data json.RawMessage) *Prompt {
	var raw map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil || raw == nil {
		return nil
	}

	p := &Prompt{
		Version:   scalarText(raw["version"]),
		Setting:   scalarText(raw["setting"]),
		Goal:      scalarText(raw["goal"]),
		Persona:   scalarText(raw["persona"]),
		Objective: scalarText(raw["objective"]),
		Rubric:    textList(raw["rubric"]),
		Opener:    scalarText(raw["opener"]),
	}
	for _, item := range rawList(raw["lesson_refs"]) {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) != nil || fields == nil {
			continue
		}
		p.LessonRefs = append(p.LessonRefs, LessonRef{
			LessonID:   scalarText(fields["lesson_id"]),
			LessonType: scalarText(fields["lesson_type"]),
			Title:      scalarText(fields["title"]),
		})
	}
	return p
}

// scalarText reads a string, or the literal text of a number or boolean.
// Anything else is empty.
func scalarText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch c := v[0]; {
	case c == '"':
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			return n.String()
		}
	case c == 't' || c == 'f':
		var b bool
		if json.Unmarshal(v, &b) == nil {
			return fmt.Sprint(b)
		}
	}
	return ""
}

func rawList(v json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if len(v) == 0 || json.Unmarshal(v, &items) != nil {
		return nil
	}
	return items
}

// textList keeps the scalar elements of a list and drops the rest
func textList(v json.RawMessage) []string {
	items := rawList(v)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := scalarText(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
