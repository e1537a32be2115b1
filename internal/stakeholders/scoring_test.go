package stakeholders

import "testing"

func TestInfluenceScore(t *testing.T) {
	scoring := DefaultScoring{}

	cases := []struct {
		name string
		s    Stakeholder
		want float64
	}{
		{"explicit metric wins", Stakeholder{Type: TypeSecondaryUser, InfluenceMetrics: map[string]float64{"decision_power": 0.95}}, 0.95},
		{"metric clamped", Stakeholder{InfluenceMetrics: map[string]float64{"decision_power": 1.5}}, 1},
		{"decision maker default", Stakeholder{Type: TypeDecisionMaker}, 0.8},
		{"influencer default", Stakeholder{Type: TypeInfluencer}, 0.8},
		{"primary customer default", Stakeholder{Type: TypePrimaryCustomer}, 0.7},
		{"secondary user default", Stakeholder{Type: TypeSecondaryUser}, 0.5},
	}
	for _, tc := range cases {
		if got := scoring.InfluenceScore(tc.s); got != tc.want {
			t.Errorf("%s: InfluenceScore = %f, want %f", tc.name, got, tc.want)
		}
	}
}

func TestEngagementScore(t *testing.T) {
	scoring := DefaultScoring{}

	plain := Stakeholder{Confidence: 0.6}
	if got := scoring.EngagementScore(plain); got != 0.6 {
		t.Fatalf("expected raw confidence, got %f", got)
	}

	engaged := Stakeholder{Confidence: 0.6, Insights: map[string]any{"quote": "love it"}}
	if got := scoring.EngagementScore(engaged); !approx(got, 0.8) {
		t.Fatalf("expected insights bump to 0.8, got %f", got)
	}

	capped := Stakeholder{Confidence: 0.95, Insights: map[string]any{"quote": "love it"}}
	if got := scoring.EngagementScore(capped); got != 1 {
		t.Fatalf("expected clamp to 1, got %f", got)
	}
}

func TestSeverityWeight(t *testing.T) {
	scoring := DefaultScoring{}

	cases := map[string]float64{
		SeverityLow:      0.2,
		SeverityMedium:   0.5,
		SeverityHigh:     0.8,
		SeverityCritical: 1.0,
		"unknown":        0.5,
	}
	for severity, want := range cases {
		if got := scoring.SeverityWeight(severity); got != want {
			t.Errorf("SeverityWeight(%q) = %f, want %f", severity, got, want)
		}
	}
}
