package stakeholders

import (
	"context"
	"encoding/json"
	"fmt"

	"insight-backend/internal/completion"
	"insight-backend/internal/shared/telemetry"
)

// Summarizer turns roster plus synthesis into a narrative summary with
// recommendations. It degrades to a deterministic summary when the
// completion capability fails; both paths produce the same type.
type Summarizer struct {
	Completion completion.Client
	Scoring    ScoringStrategy
}

// NewSummarizer constructs a Summarizer with default scoring.
func NewSummarizer(client completion.Client) *Summarizer {
	return &Summarizer{Completion: client, Scoring: DefaultScoring{}}
}

func (s *Summarizer) scoring() ScoringStrategy {
	if s.Scoring == nil {
		return DefaultScoring{}
	}
	return s.Scoring
}

// Summarize produces the multi-stakeholder summary. The bool result reports
// whether the deterministic fallback was used.
func (s *Summarizer) Summarize(ctx context.Context, jobID string, roster Roster, synthesis *Synthesis) (*Summary, bool) {
	if s.Completion != nil && s.Completion.Available() {
		summary, err := s.summarizeWithCapability(ctx, roster, synthesis)
		if err == nil {
			return summary, false
		}
		telemetry.Error("stakeholders.summary_fallback", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
	return s.Fallback(roster, synthesis), true
}

func (s *Summarizer) summarizeWithCapability(ctx context.Context, roster Roster, synthesis *Synthesis) (*Summary, error) {
	contextPayload, err := json.Marshal(map[string]any{
		"stakeholders":       roster,
		"consensus_areas":    synthesis.ConsensusAreas,
		"conflict_zones":     synthesis.ConflictZones,
		"influence_networks": synthesis.InfluenceNetworks,
		"priority_matrix":    synthesis.PriorityMatrix,
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.Completion.Complete(ctx, completion.Request{
		Task: "multi_stakeholder_summary",
		Instructions: "Summarize this multi-stakeholder analysis. Return consensus_score and conflict_score " +
			"(0-1), three key_insights, and three recommendations covering risks and next steps.",
		Content: string(contextPayload),
		Shape:   `{"consensus_score":0,"conflict_score":0,"key_insights":[],"recommendations":[]}`,
	})
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("summary payload: %w", err)
	}
	summary.TotalStakeholders = len(roster)
	summary.ConsensusScore = clamp01(summary.ConsensusScore)
	summary.ConflictScore = clamp01(summary.ConflictScore)
	if summary.KeyInsights == nil {
		summary.KeyInsights = []string{}
	}
	if summary.Recommendations == nil {
		summary.Recommendations = []string{}
	}
	return &summary, nil
}

// Fallback derives the summary deterministically from the synthesis.
func (s *Summarizer) Fallback(roster Roster, synthesis *Synthesis) *Summary {
	scoring := s.scoring()

	consensusScore := 0.7
	if len(synthesis.ConsensusAreas) > 0 {
		var sum float64
		for _, area := range synthesis.ConsensusAreas {
			sum += area.AgreementLevel
		}
		consensusScore = clamp01(sum / float64(len(synthesis.ConsensusAreas)))
	}

	conflictScore := 0.3
	if len(synthesis.ConflictZones) > 0 {
		var sum float64
		for _, zone := range synthesis.ConflictZones {
			sum += scoring.SeverityWeight(zone.Severity)
		}
		conflictScore = clamp01(sum / float64(len(synthesis.ConflictZones)))
	}

	highInfluence := 0
	for _, member := range roster {
		if scoring.InfluenceScore(member) >= influenceThreshold {
			highInfluence++
		}
	}

	insights := []string{
		fmt.Sprintf("%d distinct stakeholders were identified across the source material", len(roster)),
		fmt.Sprintf("%d consensus areas and %d conflict zones emerged between them", len(synthesis.ConsensusAreas), len(synthesis.ConflictZones)),
		fmt.Sprintf("%d stakeholders carry high influence over adoption decisions", highInfluence),
	}
	recommendations := []string{
		"Prioritize engagement with high-influence stakeholders first",
		"Address the identified conflict zones before they harden into blockers",
		"Leverage consensus areas as anchors for roadmap communication",
	}

	return &Summary{
		TotalStakeholders: len(roster),
		ConsensusScore:    consensusScore,
		ConflictScore:     conflictScore,
		KeyInsights:       insights,
		Recommendations:   recommendations,
	}
}
