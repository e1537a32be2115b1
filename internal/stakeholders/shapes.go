package stakeholders

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Providers wrap the stakeholder list in different envelopes depending on
// model and prompt: a bare array, a keyed object, or a single object. Each
// matcher either claims the payload or passes; the first match wins.
type shapeMatcher func(raw json.RawMessage) (Roster, bool)

var rosterShapes = []shapeMatcher{
	matchBareList,
	matchKeyedObject,
	matchSingleObject,
}

// DecodeRoster decodes a completion payload through the ordered shape
// matchers. It returns an error only when no shape claims the payload.
func DecodeRoster(raw json.RawMessage) (Roster, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty roster payload")
	}
	for _, match := range rosterShapes {
		if roster, ok := match(json.RawMessage(trimmed)); ok {
			return roster, nil
		}
	}
	return nil, fmt.Errorf("roster payload matches no known shape")
}

func matchBareList(raw json.RawMessage) (Roster, bool) {
	var items []rawStakeholder
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return coerceRoster(items)
}

var rosterKeys = []string{"stakeholders", "roster", "participants", "personas"}

func matchKeyedObject(raw json.RawMessage) (Roster, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	for _, key := range rosterKeys {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		var items []rawStakeholder
		if err := json.Unmarshal(inner, &items); err != nil {
			continue
		}
		if roster, ok := coerceRoster(items); ok {
			return roster, true
		}
	}
	return nil, false
}

func matchSingleObject(raw json.RawMessage) (Roster, bool) {
	var item rawStakeholder
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, false
	}
	s, ok := item.coerce()
	if !ok {
		return nil, false
	}
	return Roster{s}, true
}

// rawStakeholder tolerates loosely typed fields in provider output.
type rawStakeholder struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	StakeholderType  string         `json:"stakeholder_type"`
	Confidence       any            `json:"confidence"`
	Demographics     map[string]any `json:"demographics"`
	Profile          map[string]any `json:"demographic_profile"`
	Insights         map[string]any `json:"individual_insights"`
	InfluenceMetrics map[string]any `json:"influence_metrics"`
}

func coerceRoster(items []rawStakeholder) (Roster, bool) {
	if len(items) == 0 {
		return nil, false
	}
	roster := make(Roster, 0, len(items))
	for i, item := range items {
		s, ok := item.coerce()
		if !ok {
			continue
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("stakeholder_%d", i+1)
		}
		roster = append(roster, s)
	}
	if len(roster) == 0 {
		return nil, false
	}
	return roster, true
}

func (r rawStakeholder) coerce() (Stakeholder, bool) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = strings.TrimSpace(r.Name)
	}
	typ := r.Type
	if typ == "" {
		typ = r.StakeholderType
	}
	if id == "" && typ == "" {
		return Stakeholder{}, false
	}
	demographics := r.Demographics
	if len(demographics) == 0 {
		demographics = r.Profile
	}
	return Stakeholder{
		ID:               id,
		Type:             normalizeType(strings.ToLower(strings.TrimSpace(typ))),
		Confidence:       clamp01(coerceFloat(r.Confidence, 0.5)),
		Demographics:     coerceStringMap(demographics),
		Insights:         ensureAnyMap(r.Insights),
		InfluenceMetrics: coerceScoreMap(r.InfluenceMetrics),
	}, true
}

func coerceFloat(value any, def float64) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func coerceStringMap(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out
}

func coerceScoreMap(in map[string]any) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = clamp01(coerceFloat(v, 0))
	}
	return out
}

func ensureAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
