package drill

import (
	"encoding/json"
	"strings"
)

var endOfCallTypes = map[string]bool{
	"end-of-call-report": true,
	"call-ended-report":  true,
}

// summaryPaths are tried in order against an end-of-call event.
var summaryPaths = [][]string{
	{"message", "analysis", "summary"},
	{"analysis", "summary"},
	{"message", "analysis", "artifact", "summary"},
	{"analysis", "artifact", "summary"},
	{"message", "artifact", "summary"},
	{"artifact", "summary"},
	{"message", "analysis", "artifact", "report"},
	{"analysis", "artifact", "report"},
	{"message", "artifact", "report"},
	{"artifact", "report"},
	{"message", "report"},
	{"report"},
}

// EndOfCallSummary returns the summary carried by the most recent
// end-of-call report in events that has one, or "" when there is none.
func EndOfCallSummary(events []json.RawMessage) string {
	for i := len(events) - 1; i >= 0; i-- {
		var ev map[string]interface{}
		if json.Unmarshal(events[i], &ev) != nil {
			continue
		}
		if !isEndOfCall(ev) {
			continue
		}
		for _, path := range summaryPaths {
			if s, ok := lookup(ev, path).(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func isEndOfCall(ev map[string]interface{}) bool {
	nested, _ := lookup(ev, []string{"message", "type"}).(string)
	own, _ := ev["type"].(string)
	return endOfCallTypes[nested] || endOfCallTypes[own]
}

func lookup(v interface{}, path []string) interface{} {
	for _, key := range path {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}
