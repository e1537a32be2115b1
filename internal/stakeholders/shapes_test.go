package stakeholders

import (
	"encoding/json"
	"testing"
)

func TestDecodeRosterBareList(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":"alice","type":"decision_maker","confidence":0.9},
		{"name":"Bob Stone","stakeholder_type":"primary_customer","confidence":"0.8"}
	]`)
	roster, err := DecodeRoster(raw)
	if err != nil {
		t.Fatalf("DecodeRoster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 stakeholders, got %d", len(roster))
	}
	if roster[0].ID != "alice" || roster[0].Type != TypeDecisionMaker {
		t.Fatalf("unexpected first entry: %+v", roster[0])
	}
	// name substitutes for a missing id; string confidence is coerced.
	if roster[1].ID != "Bob Stone" {
		t.Fatalf("expected name as id, got %q", roster[1].ID)
	}
	if roster[1].Confidence != 0.8 {
		t.Fatalf("expected coerced confidence 0.8, got %f", roster[1].Confidence)
	}
}

func TestDecodeRosterKeyedObject(t *testing.T) {
	for _, key := range []string{"stakeholders", "roster", "participants", "personas"} {
		raw := json.RawMessage(`{"` + key + `":[{"id":"a","type":"influencer"},{"id":"b","type":"secondary_user"}]}`)
		roster, err := DecodeRoster(raw)
		if err != nil {
			t.Fatalf("key %q: %v", key, err)
		}
		if len(roster) != 2 || roster[0].Type != TypeInfluencer || roster[1].Type != TypeSecondaryUser {
			t.Fatalf("key %q: unexpected roster %+v", key, roster)
		}
	}
}

func TestDecodeRosterSingleObject(t *testing.T) {
	raw := json.RawMessage(`{"id":"solo","type":"primary_customer","confidence":1.4,
		"demographics":{"age":34,"remote":true,"role":"analyst"},
		"influence_metrics":{"decision_power":"0.7","reach":2}}`)
	roster, err := DecodeRoster(raw)
	if err != nil {
		t.Fatalf("DecodeRoster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("expected single-entry roster, got %d", len(roster))
	}
	s := roster[0]
	if s.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %f", s.Confidence)
	}
	if s.Demographics["age"] != "34" || s.Demographics["remote"] != "true" || s.Demographics["role"] != "analyst" {
		t.Fatalf("demographics not coerced: %+v", s.Demographics)
	}
	if s.InfluenceMetrics["decision_power"] != 0.7 || s.InfluenceMetrics["reach"] != 1 {
		t.Fatalf("influence metrics not coerced: %+v", s.InfluenceMetrics)
	}
}

func TestDecodeRosterDefaultsMissingFields(t *testing.T) {
	raw := json.RawMessage(`[{"type":"primary_customer"},{"type":"weird_type"}]`)
	roster, err := DecodeRoster(raw)
	if err != nil {
		t.Fatalf("DecodeRoster: %v", err)
	}
	if roster[0].ID != "stakeholder_1" || roster[1].ID != "stakeholder_2" {
		t.Fatalf("expected positional ids, got %q %q", roster[0].ID, roster[1].ID)
	}
	// Missing confidence defaults to 0.5; unknown types normalize.
	if roster[0].Confidence != 0.5 {
		t.Fatalf("expected default confidence 0.5, got %f", roster[0].Confidence)
	}
	if roster[1].Type != TypePrimaryCustomer {
		t.Fatalf("expected unknown type normalized, got %s", roster[1].Type)
	}
	if roster[0].Insights == nil || roster[0].Demographics == nil || roster[0].InfluenceMetrics == nil {
		t.Fatalf("expected non-nil maps: %+v", roster[0])
	}
}

func TestDecodeRosterRejectsUnknownShapes(t *testing.T) {
	cases := []string{
		``,
		`   `,
		`{}`,
		`{"stakeholders":[]}`,
		`[{"confidence":0.5}]`,
		`"just a string"`,
		`42`,
	}
	for _, raw := range cases {
		if _, err := DecodeRoster(json.RawMessage(raw)); err == nil {
			t.Errorf("payload %q: expected error", raw)
		}
	}
}
