package routing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision is what a completion asked the engine to do next.
type Decision struct {
	Target        string
	TriggerAction string
	SQLQuery      string
	FinalResponse string
}

var (
	targetKeys   = []string{"target"}
	triggerKeys  = []string{"triggerAction", "trigger_action"}
	sqlKeys      = []string{"sqlQuery", "sql_query", "sql"}
	responseKeys = []string{"finalResponse", "final_response", "response"}
)

// ParseDecision reports false when text is not a JSON object.
func ParseDecision(text string) (Decision, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return Decision{}, false
	}
	return Decision{
		Target:        pick(fields, targetKeys),
		TriggerAction: pick(fields, triggerKeys),
		SQLQuery:      pick(fields, sqlKeys),
		FinalResponse: pick(fields, responseKeys),
	}, true
}

func pick(fields map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64, bool:
			s = fmt.Sprint(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			s = string(b)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
