package stakeholders

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"insight-backend/internal/completion"
	"insight-backend/internal/completion/mock"
)

func testRoster() Roster {
	return Roster{
		{ID: "alice", Type: TypeDecisionMaker, Confidence: 0.9, InfluenceMetrics: map[string]float64{"decision_power": 0.9}},
		{ID: "bob", Type: TypePrimaryCustomer, Confidence: 0.8},
		{ID: "carol", Type: TypeSecondaryUser, Confidence: 0.4},
	}
}

func TestSynthesizeRequiresTwoStakeholders(t *testing.T) {
	s := NewSynthesizer(mock.Static(`{}`))
	if _, err := s.Synthesize(context.Background(), "job", Roster{{ID: "solo"}}, "content"); err == nil {
		t.Fatalf("expected error for single-stakeholder roster")
	}
}

func TestBuildContextTruncatesOnRuneBoundary(t *testing.T) {
	// One ASCII byte up front puts the byte limit inside a two-byte rune.
	content := "x" + strings.Repeat("é", maxContextChars)

	got := buildContext(testRoster(), content)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated context is not valid UTF-8")
	}
	if !strings.HasSuffix(got, "é") {
		t.Fatalf("expected excerpt to end on a whole rune, got trailing %q", got[len(got)-4:])
	}
}

func TestSynthesizeUnavailableUsesFallback(t *testing.T) {
	s := NewSynthesizer(completion.Unavailable{})
	roster := testRoster()

	out, err := s.Synthesize(context.Background(), "job", roster, "content")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !out.UsedFallback {
		t.Fatalf("expected fallback synthesis")
	}
	if len(out.ConsensusAreas) != 1 || out.ConsensusAreas[0].AgreementLevel != 0.6 {
		t.Fatalf("unexpected fallback consensus: %+v", out.ConsensusAreas)
	}
	if !reflect.DeepEqual(out.ConsensusAreas[0].Stakeholders, roster.IDs()) {
		t.Fatalf("fallback consensus should span the roster: %+v", out.ConsensusAreas[0])
	}
	if len(out.ConflictZones) != 1 || out.ConflictZones[0].Severity != SeverityMedium {
		t.Fatalf("unexpected fallback conflict: %+v", out.ConflictZones)
	}
	if len(out.InfluenceNetworks) != 1 || out.InfluenceNetworks[0].Influencer != "alice" {
		t.Fatalf("expected decision-maker influence edge: %+v", out.InfluenceNetworks)
	}
	if out.InfluenceNetworks[0].Strength != 0.7 || out.InfluenceNetworks[0].InfluenceType != InfluenceDecision {
		t.Fatalf("unexpected influence edge: %+v", out.InfluenceNetworks[0])
	}
}

func TestSynthesizeTaskIsolation(t *testing.T) {
	client := &mock.Provider{
		CompleteFunc: func(_ context.Context, req completion.Request) (json.RawMessage, error) {
			switch req.Task {
			case taskConsensus:
				return json.RawMessage(`{"consensus_areas":[{"topic":"speed","agreement_level":0.8,"stakeholders":["alice","bob"]}]}`), nil
			case taskConflict:
				return nil, errors.New("boom")
			case taskInfluence:
				return json.RawMessage(`{"influence_networks":[{"influencer":"alice","influenced":["bob"],"influence_type":"decision","strength":0.9}]}`), nil
			}
			return json.RawMessage(`{}`), nil
		},
	}
	s := NewSynthesizer(client)

	out, err := s.Synthesize(context.Background(), "job", testRoster(), "content")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.UsedFallback {
		t.Fatalf("partial failure must not trigger full fallback")
	}
	if len(out.ConsensusAreas) != 1 || out.ConsensusAreas[0].Topic != "speed" {
		t.Fatalf("unexpected consensus: %+v", out.ConsensusAreas)
	}
	// The failed task yields an empty list, never nil.
	if out.ConflictZones == nil || len(out.ConflictZones) != 0 {
		t.Fatalf("expected empty conflict zones, got %+v", out.ConflictZones)
	}
	if len(out.InfluenceNetworks) != 1 {
		t.Fatalf("unexpected influence networks: %+v", out.InfluenceNetworks)
	}
	if out.TaskErrors[taskConflict] != "boom" {
		t.Fatalf("expected conflict task error recorded, got %+v", out.TaskErrors)
	}
}

func TestSynthesizeAllTasksFailFallsBack(t *testing.T) {
	s := NewSynthesizer(mock.Failing(errors.New("provider down")))

	out, err := s.Synthesize(context.Background(), "job", testRoster(), "content")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !out.UsedFallback {
		t.Fatalf("expected fallback when all tasks fail")
	}
	if len(out.ConsensusAreas) == 0 || len(out.ConflictZones) == 0 {
		t.Fatalf("fallback synthesis incomplete: %+v", out)
	}
}

func TestDecodeFiltersToRoster(t *testing.T) {
	roster := testRoster()

	areas, err := decodeConsensus(json.RawMessage(`{"consensus_areas":[
		{"topic":"kept","agreement_level":1.7,"stakeholders":["alice","ghost"]},
		{"topic":"dropped","agreement_level":0.5,"stakeholders":["ghost"]}
	]}`), roster)
	if err != nil {
		t.Fatalf("decodeConsensus: %v", err)
	}
	if len(areas) != 1 || areas[0].Topic != "kept" {
		t.Fatalf("unexpected areas: %+v", areas)
	}
	if areas[0].AgreementLevel != 1 {
		t.Fatalf("agreement level not clamped: %f", areas[0].AgreementLevel)
	}
	if !reflect.DeepEqual(areas[0].Stakeholders, []string{"alice"}) {
		t.Fatalf("unknown ids not filtered: %+v", areas[0].Stakeholders)
	}

	// A conflict needs at least two roster members after filtering.
	zones, err := decodeConflicts(json.RawMessage(`{"conflict_zones":[
		{"topic":"kept","stakeholders":["alice","bob"],"severity":"EXTREME"},
		{"topic":"dropped","stakeholders":["alice","ghost"],"severity":"high"}
	]}`), roster)
	if err != nil {
		t.Fatalf("decodeConflicts: %v", err)
	}
	if len(zones) != 1 || zones[0].Topic != "kept" {
		t.Fatalf("unexpected zones: %+v", zones)
	}
	if zones[0].Severity != SeverityMedium {
		t.Fatalf("unknown severity should normalize to medium, got %s", zones[0].Severity)
	}

	networks, err := decodeInfluence(json.RawMessage(`[
		{"influencer":"alice","influenced":["bob","ghost"],"influence_type":"mind-control","strength":2},
		{"influencer":"ghost","influenced":["bob"]}
	]`), roster)
	if err != nil {
		t.Fatalf("decodeInfluence: %v", err)
	}
	if len(networks) != 1 {
		t.Fatalf("unexpected networks: %+v", networks)
	}
	if !reflect.DeepEqual(networks[0].Influenced, []string{"bob"}) {
		t.Fatalf("unknown influenced ids not filtered: %+v", networks[0].Influenced)
	}
	if networks[0].InfluenceType != InfluenceOpinion || networks[0].Strength != 1 {
		t.Fatalf("influence edge not normalized: %+v", networks[0])
	}
}

func TestBuildPriorityMatrix(t *testing.T) {
	s := NewSynthesizer(nil)
	roster := Roster{
		// influence 0.9, engagement 0.9: key player
		{ID: "key", Type: TypeDecisionMaker, Confidence: 0.9, InfluenceMetrics: map[string]float64{"decision_power": 0.9}},
		// influence 0.8 by type, engagement 0.4: keep satisfied
		{ID: "satisfied", Type: TypeInfluencer, Confidence: 0.4},
		// influence 0.5 by type, engagement 0.5+0.2 insights bump: keep informed
		{ID: "informed", Type: TypeSecondaryUser, Confidence: 0.5, Insights: map[string]any{"note": "daily user"}},
		// influence 0.3 override, engagement 0.2: monitor
		{ID: "quiet", Type: TypeDecisionMaker, Confidence: 0.2, InfluenceMetrics: map[string]float64{"decision_power": 0.3}},
	}

	matrix := s.BuildPriorityMatrix(roster)
	want := PriorityMatrix{
		KeyPlayers:    []string{"key"},
		KeepSatisfied: []string{"satisfied"},
		KeepInformed:  []string{"informed"},
		Monitor:       []string{"quiet"},
	}
	if !reflect.DeepEqual(matrix, want) {
		t.Fatalf("unexpected matrix: %+v", matrix)
	}

	// Deterministic: a second run over the same roster is identical.
	if again := s.BuildPriorityMatrix(roster); !reflect.DeepEqual(matrix, again) {
		t.Fatalf("matrix not deterministic: %+v vs %+v", matrix, again)
	}
}
