package results

import (
	"testing"

	"insight-backend/internal/stages"
	"insight-backend/internal/stakeholders"
)

func TestMergeNormalizesNumericFields(t *testing.T) {
	record, err := Merge(StageOutputs{
		Themes: []stages.Theme{
			{Name: "speed", Sentiment: 0.5, Frequency: 1.4},
		},
		Patterns: []stages.Pattern{
			{Name: "workaround", Sentiment: "-0.2", Frequency: "0.3"},
		},
		Sentiment: &stages.SentimentProfile{
			Overall: 0.75,
			ByTopic: map[string]any{"pricing": "0.25"},
		},
		Intelligence: stakeholders.Failed(nil, "", ""),
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	themes := record["themes"].([]any)
	theme := themes[0].(map[string]any)
	if theme["sentiment"] != 0.0 {
		t.Fatalf("unit sentiment 0.5 should remap to 0, got %v", theme["sentiment"])
	}
	if theme["frequency"] != 1.0 {
		t.Fatalf("frequency should clamp to 1, got %v", theme["frequency"])
	}
	if theme["supporting_quotes"] == nil {
		t.Fatalf("supporting_quotes must serialize as a list")
	}

	patterns := record["patterns"].([]any)
	pattern := patterns[0].(map[string]any)
	if pattern["sentiment"] != -0.2 {
		t.Fatalf("signed string sentiment should pass through, got %v", pattern["sentiment"])
	}

	sentiment := record["sentiment"].(map[string]any)
	if sentiment["overall"] != 0.5 {
		t.Fatalf("overall 0.75 should remap to 0.5, got %v", sentiment["overall"])
	}
	byTopic := sentiment["by_topic"].(map[string]any)
	if byTopic["pricing"] != -0.5 {
		t.Fatalf("topic 0.25 should remap to -0.5, got %v", byTopic["pricing"])
	}
}

func TestMergeSubstitutesMissingIntelligence(t *testing.T) {
	record, err := Merge(StageOutputs{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	intel, ok := record["stakeholder_intelligence"].(map[string]any)
	if !ok {
		t.Fatalf("stakeholder_intelligence must never be null, got %T", record["stakeholder_intelligence"])
	}
	roster, ok := intel["stakeholders"].([]any)
	if !ok || len(roster) != 0 {
		t.Fatalf("expected empty roster list, got %v", intel["stakeholders"])
	}
	meta := intel["processing_metadata"].(map[string]any)
	if meta["error"] == "" || meta["error"] == nil {
		t.Fatalf("expected substitution error recorded, got %v", meta)
	}
}

func TestMergeEmptyCollectionsAreLists(t *testing.T) {
	record, err := Merge(StageOutputs{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for _, key := range []string{"themes", "patterns", "personas", "insights"} {
		if _, ok := record[key].([]any); !ok {
			t.Errorf("%s must serialize as a list, got %T", key, record[key])
		}
	}
	sentiment := record["sentiment"].(map[string]any)
	if _, ok := sentiment["positives"].([]any); !ok {
		t.Errorf("positives must serialize as a list, got %T", sentiment["positives"])
	}
}
