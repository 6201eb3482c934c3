package drill

import (
	"bytes"
	"encoding/json"
	"strings"
)

type TranscriptKind int

const (
	TranscriptEmpty TranscriptKind = iota
	TranscriptText
	TranscriptTurnList
	TranscriptWrapped
)

var (
	wrapperKeys = []string{"messages", "turns", "items", "transcript"}
	roleKeys    = []string{"role", "speaker", "from", "userRole", "type"}
	contentKeys = []string{"content", "text", "transcript", "message", "utterance"}
)

// Transcript holds the shapes a drill transcript arrives in: nothing, a
// plain string, a list of turns, or an object wrapping either a turn list
// or arbitrary data.
type Transcript struct {
	Kind    TranscriptKind
	Text    string
	Entries []TranscriptEntry
	// Inner is set for a wrapper object that carries a nested list.
	Inner *Transcript
	// Object is the raw wrapper when no nested list was found.
	Object json.RawMessage

	raw json.RawMessage
}

// TranscriptEntry is one element of a turn list: either a bare string or
// an object with role-like and content-like fields.
type TranscriptEntry struct {
	IsText bool
	Text   string
	Fields map[string]json.RawMessage
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	parsed := parseTranscript(data)
	*t = parsed
	return nil
}

func (t Transcript) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

func parseTranscript(data []byte) Transcript {
	data = bytes.TrimSpace(data)
	t := Transcript{raw: append(json.RawMessage(nil), data...)}
	if len(data) == 0 {
		return t
	}

	switch data[0] {
	case '"':
		var s string
		if json.Unmarshal(data, &s) == nil {
			t.Kind = TranscriptText
			t.Text = s
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(data, &items) == nil {
			t.Kind = TranscriptTurnList
			t.Entries = parseEntries(items)
		}
	case '{':
		var fields map[string]json.RawMessage
		if json.Unmarshal(data, &fields) != nil {
			return t
		}
		t.Kind = TranscriptWrapped
		for _, key := range wrapperKeys {
			nested := bytes.TrimSpace(fields[key])
			if len(nested) > 0 && nested[0] == '[' {
				inner := parseTranscript(nested)
				t.Inner = &inner
				return t
			}
		}
		t.Object = t.raw
	}
	return t
}

func parseEntries(items []json.RawMessage) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		switch item[0] {
		case '"':
			var s string
			if json.Unmarshal(item, &s) == nil {
				entries = append(entries, TranscriptEntry{IsText: true, Text: s})
			}
		case '{':
			var fields map[string]json.RawMessage
			if json.Unmarshal(item, &fields) == nil {
				entries = append(entries, TranscriptEntry{Fields: fields})
			}
		}
	}
	return entries
}

// Turns flattens the transcript into user/coach turns. Plain strings are
// coach turns and empty content is dropped.
func (t Transcript) Turns() []Turn {
	switch t.Kind {
	case TranscriptText:
		if text := strings.TrimSpace(t.Text); text != "" {
			return []Turn{{Role: RoleCoach, Content: text}}
		}
	case TranscriptTurnList:
		turns := make([]Turn, 0, len(t.Entries))
		for _, e := range t.Entries {
			if turn, ok := e.turn(); ok {
				turns = append(turns, turn)
			}
		}
		return turns
	case TranscriptWrapped:
		if t.Inner != nil {
			return t.Inner.Turns()
		}
		var compact bytes.Buffer
		if json.Compact(&compact, t.Object) == nil && compact.Len() > 0 {
			return []Turn{{Role: RoleCoach, Content: compact.String()}}
		}
	}
	return nil
}

func (e TranscriptEntry) turn() (Turn, bool) {
	if e.IsText {
		text := strings.TrimSpace(e.Text)
		return Turn{Role: RoleCoach, Content: text}, text != ""
	}

	content := strings.TrimSpace(firstString(e.Fields, contentKeys))
	if content == "" {
		return Turn{}, false
	}
	return Turn{Role: roleFor(firstString(e.Fields, roleKeys)), Content: content}, true
}

func roleFor(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "assistant", "ai", "coach":
		return RoleCoach
	}
	return RoleUser
}

// firstString returns the first non-empty string value under keys.
func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		var s string
		if json.Unmarshal(fields[key], &s) == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
