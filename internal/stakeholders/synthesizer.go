package stakeholders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"insight-backend/internal/completion"
	"insight-backend/internal/shared/telemetry"
)

const (
	taskConsensus = "consensus_areas"
	taskConflict  = "conflict_zones"
	taskInfluence = "influence_networks"

	// maxContextChars bounds the source excerpt shared by the three
	// sub-analyses so a long transcript cannot blow the prompt budget.
	maxContextChars = 12000
)

// Synthesizer runs the three cross-stakeholder analyses concurrently over a
// shared immutable context and joins the results with per-task isolation.
type Synthesizer struct {
	Completion completion.Client
	Scoring    ScoringStrategy
}

// NewSynthesizer constructs a Synthesizer with default scoring.
func NewSynthesizer(client completion.Client) *Synthesizer {
	return &Synthesizer{Completion: client, Scoring: DefaultScoring{}}
}

func (s *Synthesizer) scoring() ScoringStrategy {
	if s.Scoring == nil {
		return DefaultScoring{}
	}
	return s.Scoring
}

// Synthesize requires a roster of at least two stakeholders. It never
// returns a nil result: if every sub-analysis fails, a deterministic
// fallback synthesis is substituted.
func (s *Synthesizer) Synthesize(ctx context.Context, jobID string, roster Roster, content string) (*Synthesis, error) {
	if len(roster) < 2 {
		return nil, fmt.Errorf("synthesis requires at least 2 stakeholders, got %d", len(roster))
	}

	out := &Synthesis{
		PriorityMatrix: s.BuildPriorityMatrix(roster),
		TaskErrors:     map[string]string{},
	}

	if s.Completion == nil || !s.Completion.Available() {
		s.applyFallback(out, roster, "completion capability unavailable")
		return out, nil
	}

	sharedContext := buildContext(roster, content)

	var mu sync.Mutex
	var wg sync.WaitGroup
	run := func(task string, apply func(raw json.RawMessage) error) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				out.TaskErrors[task] = fmt.Sprintf("panic: %v", r)
				mu.Unlock()
			}
		}()
		raw, err := s.Completion.Complete(ctx, synthesisRequest(task, sharedContext))
		if err == nil {
			err = apply(raw)
		}
		if err != nil {
			telemetry.Error("stakeholders.synthesis_task_failed", map[string]any{
				"job_id": jobID,
				"task":   task,
				"error":  err.Error(),
			})
			mu.Lock()
			out.TaskErrors[task] = err.Error()
			mu.Unlock()
		}
	}

	wg.Add(3)
	go run(taskConsensus, func(raw json.RawMessage) error {
		areas, err := decodeConsensus(raw, roster)
		if err != nil {
			return err
		}
		mu.Lock()
		out.ConsensusAreas = areas
		mu.Unlock()
		return nil
	})
	go run(taskConflict, func(raw json.RawMessage) error {
		zones, err := decodeConflicts(raw, roster)
		if err != nil {
			return err
		}
		mu.Lock()
		out.ConflictZones = zones
		mu.Unlock()
		return nil
	})
	go run(taskInfluence, func(raw json.RawMessage) error {
		networks, err := decodeInfluence(raw, roster)
		if err != nil {
			return err
		}
		mu.Lock()
		out.InfluenceNetworks = networks
		mu.Unlock()
		return nil
	})
	wg.Wait()

	if len(out.TaskErrors) == 3 {
		s.applyFallback(out, roster, "all synthesis tasks failed")
		return out, nil
	}

	// Failed tasks contribute an empty list, not a nil one.
	if out.ConsensusAreas == nil {
		out.ConsensusAreas = []ConsensusArea{}
	}
	if out.ConflictZones == nil {
		out.ConflictZones = []ConflictZone{}
	}
	if out.InfluenceNetworks == nil {
		out.InfluenceNetworks = []InfluenceNetwork{}
	}
	return out, nil
}

// BuildPriorityMatrix buckets the roster into influence/engagement quadrants.
// It is fully deterministic: identical inputs always land in the same quadrant.
func (s *Synthesizer) BuildPriorityMatrix(roster Roster) PriorityMatrix {
	scoring := s.scoring()
	matrix := PriorityMatrix{
		KeyPlayers:    []string{},
		KeepSatisfied: []string{},
		KeepInformed:  []string{},
		Monitor:       []string{},
	}
	for _, member := range roster {
		influence := scoring.InfluenceScore(member)
		engagement := scoring.EngagementScore(member)
		switch {
		case influence >= influenceThreshold && engagement >= engagementThreshold:
			matrix.KeyPlayers = append(matrix.KeyPlayers, member.ID)
		case influence >= influenceThreshold:
			matrix.KeepSatisfied = append(matrix.KeepSatisfied, member.ID)
		case engagement >= engagementThreshold:
			matrix.KeepInformed = append(matrix.KeepInformed, member.ID)
		default:
			matrix.Monitor = append(matrix.Monitor, member.ID)
		}
	}
	return matrix
}

// applyFallback fills the synthesis with the schema-compliant deterministic
// substitute used under total failure.
func (s *Synthesizer) applyFallback(out *Synthesis, roster Roster, reason string) {
	out.UsedFallback = true
	if out.TaskErrors == nil {
		out.TaskErrors = map[string]string{}
	}
	out.TaskErrors["fallback"] = reason

	out.ConsensusAreas = []ConsensusArea{{
		Topic:          "Overall product experience",
		AgreementLevel: 0.6,
		Stakeholders:   roster.IDs(),
		SharedInsights: []string{"All stakeholders engaged with the same product area"},
		BusinessImpact: "Shared baseline for prioritization despite limited analysis",
	}}

	out.ConflictZones = []ConflictZone{{
		Topic:        "Priorities and expectations",
		Stakeholders: []string{roster[0].ID, roster[1].ID},
		Severity:     SeverityMedium,
		Resolutions:  []string{"Run a joint prioritization session"},
		BusinessRisk: "Unvalidated divergence between stakeholder groups",
	}}

	out.InfluenceNetworks = []InfluenceNetwork{}
	if dm := firstOfType(roster, TypeDecisionMaker); dm != nil {
		influenced := make([]string, 0, 2)
		for _, member := range roster {
			if member.ID == dm.ID {
				continue
			}
			influenced = append(influenced, member.ID)
			if len(influenced) == 2 {
				break
			}
		}
		out.InfluenceNetworks = append(out.InfluenceNetworks, InfluenceNetwork{
			Influencer:    dm.ID,
			Influenced:    influenced,
			InfluenceType: InfluenceDecision,
			Strength:      0.7,
			Pathway:       "Organizational authority over adoption decisions",
		})
	}
}

func firstOfType(roster Roster, stakeholderType string) *Stakeholder {
	for i := range roster {
		if roster[i].Type == stakeholderType {
			return &roster[i]
		}
	}
	return nil
}

func buildContext(roster Roster, content string) string {
	var b strings.Builder
	b.WriteString("Stakeholders:\n")
	for _, member := range roster {
		b.WriteString("- ")
		b.WriteString(member.ID)
		b.WriteString(" (")
		b.WriteString(member.Type)
		b.WriteString(")")
		if role, ok := member.Demographics["role"]; ok {
			b.WriteString(", role: ")
			b.WriteString(role)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nSource material:\n")
	if len(content) > maxContextChars {
		cut := maxContextChars
		// Back off to a rune boundary so the excerpt stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	b.WriteString(content)
	return b.String()
}

func synthesisRequest(task, sharedContext string) completion.Request {
	req := completion.Request{Task: task, Content: sharedContext}
	switch task {
	case taskConsensus:
		req.Instructions = "Identify topics where the listed stakeholders agree. For each, return topic, agreement_level (0-1), stakeholders (ids from the list), shared_insights, and business_impact."
		req.Shape = `{"consensus_areas":[{"topic":"","agreement_level":0,"stakeholders":[],"shared_insights":[],"business_impact":""}]}`
	case taskConflict:
		req.Instructions = "Identify topics where the listed stakeholders disagree. For each, return topic, stakeholders (at least two ids), severity (low|medium|high|critical), resolutions, and business_risk."
		req.Shape = `{"conflict_zones":[{"topic":"","stakeholders":[],"severity":"","resolutions":[],"business_risk":""}]}`
	case taskInfluence:
		req.Instructions = "Identify how stakeholders influence one another. For each edge, return influencer (id), influenced (ids), influence_type (decision|opinion|adoption|resistance), strength (0-1), and pathway."
		req.Shape = `{"influence_networks":[{"influencer":"","influenced":[],"influence_type":"","strength":0,"pathway":""}]}`
	}
	return req
}

func decodeConsensus(raw json.RawMessage, roster Roster) ([]ConsensusArea, error) {
	var envelope struct {
		ConsensusAreas []ConsensusArea `json:"consensus_areas"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		var bare []ConsensusArea
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return nil, fmt.Errorf("consensus payload: %w", err)
		}
		envelope.ConsensusAreas = bare
	}
	out := make([]ConsensusArea, 0, len(envelope.ConsensusAreas))
	for _, area := range envelope.ConsensusAreas {
		area.AgreementLevel = clamp01(area.AgreementLevel)
		area.Stakeholders = filterToRoster(area.Stakeholders, roster)
		if len(area.Stakeholders) == 0 {
			continue
		}
		if area.SharedInsights == nil {
			area.SharedInsights = []string{}
		}
		out = append(out, area)
	}
	return out, nil
}

func decodeConflicts(raw json.RawMessage, roster Roster) ([]ConflictZone, error) {
	var envelope struct {
		ConflictZones []ConflictZone `json:"conflict_zones"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		var bare []ConflictZone
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return nil, fmt.Errorf("conflict payload: %w", err)
		}
		envelope.ConflictZones = bare
	}
	out := make([]ConflictZone, 0, len(envelope.ConflictZones))
	for _, zone := range envelope.ConflictZones {
		zone.Severity = normalizeSeverity(strings.ToLower(strings.TrimSpace(zone.Severity)))
		zone.Stakeholders = filterToRoster(zone.Stakeholders, roster)
		if len(zone.Stakeholders) < 2 {
			continue
		}
		if zone.Resolutions == nil {
			zone.Resolutions = []string{}
		}
		out = append(out, zone)
	}
	return out, nil
}

func decodeInfluence(raw json.RawMessage, roster Roster) ([]InfluenceNetwork, error) {
	var envelope struct {
		InfluenceNetworks []InfluenceNetwork `json:"influence_networks"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		var bare []InfluenceNetwork
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return nil, fmt.Errorf("influence payload: %w", err)
		}
		envelope.InfluenceNetworks = bare
	}
	out := make([]InfluenceNetwork, 0, len(envelope.InfluenceNetworks))
	for _, network := range envelope.InfluenceNetworks {
		if !roster.Contains(network.Influencer) {
			continue
		}
		network.Influenced = filterToRoster(network.Influenced, roster)
		if len(network.Influenced) == 0 {
			continue
		}
		network.InfluenceType = normalizeInfluenceType(strings.ToLower(strings.TrimSpace(network.InfluenceType)))
		network.Strength = clamp01(network.Strength)
		out = append(out, network)
	}
	return out, nil
}

func filterToRoster(ids []string, roster Roster) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if roster.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
