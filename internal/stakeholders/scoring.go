package stakeholders

// ScoringStrategy isolates the heuristic constants used for prioritization
// and multi-stakeholder gating so they can be tuned without touching the
// detector or synthesizer.
type ScoringStrategy interface {
	InfluenceScore(s Stakeholder) float64
	EngagementScore(s Stakeholder) float64
	SeverityWeight(severity string) float64
	MultiStakeholderThreshold() float64
}

// DefaultScoring implements the stock heuristics.
type DefaultScoring struct{}

// InfluenceScore prefers the explicit decision_power metric, falling back to
// a type-based default.
func (DefaultScoring) InfluenceScore(s Stakeholder) float64 {
	if power, ok := s.InfluenceMetrics["decision_power"]; ok {
		return clamp01(power)
	}
	switch s.Type {
	case TypeDecisionMaker, TypeInfluencer:
		return 0.8
	case TypePrimaryCustomer:
		return 0.7
	default:
		return 0.5
	}
}

// EngagementScore is the detection confidence, bumped when the stakeholder
// contributed individual insights.
func (DefaultScoring) EngagementScore(s Stakeholder) float64 {
	score := s.Confidence
	if len(s.Insights) > 0 {
		score += 0.2
	}
	return clamp01(score)
}

// SeverityWeight maps a conflict severity onto [0,1].
func (DefaultScoring) SeverityWeight(severity string) float64 {
	switch normalizeSeverity(severity) {
	case SeverityLow:
		return 0.2
	case SeverityHigh:
		return 0.8
	case SeverityCritical:
		return 1.0
	default:
		return 0.5
	}
}

// MultiStakeholderThreshold is the minimum detection confidence for
// treating a roster as genuinely multi-stakeholder.
func (DefaultScoring) MultiStakeholderThreshold() float64 { return 0.5 }

// Quadrant thresholds for the priority matrix.
const (
	influenceThreshold  = 0.6
	engagementThreshold = 0.7
)
