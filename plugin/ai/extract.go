package ai

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSONObject pulls a JSON object out of raw model output. Models
// sometimes wrap the payload in markdown fences or prose, so we try a plain
// parse first, then a fenced block, then the widest braced span.
func extractJSONObject(raw string) (gjson.Result, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return gjson.Result{}, false
	}

	if gjson.Valid(raw) {
		parsed := gjson.Parse(raw)
		if parsed.IsObject() {
			return parsed, true
		}
	}

	if matches := fencedJSONPattern.FindStringSubmatch(raw); len(matches) > 1 {
		if gjson.Valid(matches[1]) {
			parsed := gjson.Parse(matches[1])
			if parsed.IsObject() {
				return parsed, true
			}
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		candidate := raw[start : end+1]
		if gjson.Valid(candidate) {
			parsed := gjson.Parse(candidate)
			if parsed.IsObject() {
				return parsed, true
			}
		}
	}

	return gjson.Result{}, false
}

// decodeTurnPlan converts a parsed planner payload into a TurnPlan. Returns
// false when the payload violates the output contract.
func decodeTurnPlan(payload gjson.Result) (*TurnPlan, bool) {
	reply := payload.Get("reply")
	actions := payload.Get("actions")
	if reply.Type != gjson.String || !actions.IsArray() {
		return nil, false
	}

	plan := &TurnPlan{
		Reply:   strings.TrimSpace(reply.String()),
		Actions: []AgentAction{},
	}
	for _, item := range actions.Array() {
		if !item.IsObject() {
			continue
		}
		plan.Actions = append(plan.Actions, decodeAction(item))
	}
	return plan, true
}

func decodeAction(item gjson.Result) AgentAction {
	action := AgentAction{
		Type:          ActionType(strings.TrimSpace(item.Get("type").String())),
		TitleContains: item.Get("title_contains").String(),
		Title:         item.Get("title").String(),
		Notes:         item.Get("notes").String(),
		MetadataHTML:  item.Get("metadata_html").String(),
		DueAtISO:      strings.TrimSpace(item.Get("due_at_iso").String()),
	}

	if v := item.Get("task_id"); v.Exists() && v.Type != gjson.Null {
		id := int32(v.Int())
		action.TaskID = &id
	}
	if v := item.Get("due_in_days"); v.Exists() && v.Type != gjson.Null {
		days := v.Float()
		action.DueInDays = &days
	}
	if v := item.Get("hours"); v.Exists() && v.Type != gjson.Null {
		hours := v.Float()
		action.Hours = &hours
	}
	if v := item.Get("estimated_minutes"); v.Exists() && v.Type != gjson.Null {
		minutes := int32(v.Int())
		action.EstimatedMinutes = &minutes
	}
	if v := item.Get("urgency"); v.Exists() && v.Type != gjson.Null {
		urgency := int32(v.Int())
		action.Urgency = &urgency
	}
	if v := item.Get("importance"); v.Exists() && v.Type != gjson.Null {
		importance := int32(v.Int())
		action.Importance = &importance
	}
	if v := item.Get("metadata_json"); v.IsObject() {
		if m, ok := v.Value().(map[string]any); ok {
			action.MetadataJSON = m
		}
	}

	return action
}

// jsonObjectToMap converts a parsed object into a plain map, or nil when the
// value is not an object.
func jsonObjectToMap(value gjson.Result) map[string]any {
	if !value.IsObject() {
		return nil
	}
	if m, ok := value.Value().(map[string]any); ok {
		return m
	}
	return nil
}
