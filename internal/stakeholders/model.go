package stakeholders

import "time"

// Stakeholder types recognized by the detector.
const (
	TypePrimaryCustomer = "primary_customer"
	TypeSecondaryUser   = "secondary_user"
	TypeDecisionMaker   = "decision_maker"
	TypeInfluencer      = "influencer"
)

// Conflict severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Influence relationship types.
const (
	InfluenceDecision   = "decision"
	InfluenceOpinion    = "opinion"
	InfluenceAdoption   = "adoption"
	InfluenceResistance = "resistance"
)

// Detection methods recorded in processing metadata.
const (
	MethodContentAnalysis = "content_analysis"
	MethodPatternMatching = "pattern_matching"
)

// Stakeholder is one detected voice in the source material.
type Stakeholder struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	Confidence       float64            `json:"confidence"`
	Demographics     map[string]string  `json:"demographics"`
	Insights         map[string]any     `json:"individual_insights"`
	InfluenceMetrics map[string]float64 `json:"influence_metrics"`
}

// Roster is the ordered collection of detected stakeholders for a job.
type Roster []Stakeholder

// Contains reports whether the roster holds a stakeholder with the given id.
func (r Roster) Contains(id string) bool {
	for _, s := range r {
		if s.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the roster ids in order.
func (r Roster) IDs() []string {
	out := make([]string, 0, len(r))
	for _, s := range r {
		out = append(out, s.ID)
	}
	return out
}

// Detection is the outcome of one detector run.
type Detection struct {
	Roster             Roster  `json:"stakeholders"`
	Method             string  `json:"detection_method"`
	Confidence         float64 `json:"confidence"`
	IsMultiStakeholder bool    `json:"is_multi_stakeholder"`
}

// ConsensusArea is a topic where multiple stakeholders agree.
type ConsensusArea struct {
	Topic          string   `json:"topic"`
	AgreementLevel float64  `json:"agreement_level"`
	Stakeholders   []string `json:"stakeholders"`
	SharedInsights []string `json:"shared_insights"`
	BusinessImpact string   `json:"business_impact"`
}

// ConflictZone is a topic where stakeholders disagree.
type ConflictZone struct {
	Topic        string   `json:"topic"`
	Stakeholders []string `json:"stakeholders"`
	Severity     string   `json:"severity"`
	Resolutions  []string `json:"resolutions"`
	BusinessRisk string   `json:"business_risk"`
}

// InfluenceNetwork is a directed relationship from one stakeholder to others.
type InfluenceNetwork struct {
	Influencer    string   `json:"influencer"`
	Influenced    []string `json:"influenced"`
	InfluenceType string   `json:"influence_type"`
	Strength      float64  `json:"strength"`
	Pathway       string   `json:"pathway"`
}

// PriorityMatrix buckets stakeholders into a 2x2 influence/engagement grid.
type PriorityMatrix struct {
	KeyPlayers    []string `json:"key_players"`
	KeepSatisfied []string `json:"keep_satisfied"`
	KeepInformed  []string `json:"keep_informed"`
	Monitor       []string `json:"monitor"`
}

// Synthesis joins the three cross-stakeholder analyses plus the
// deterministic priority matrix.
type Synthesis struct {
	ConsensusAreas    []ConsensusArea    `json:"consensus_areas"`
	ConflictZones     []ConflictZone     `json:"conflict_zones"`
	InfluenceNetworks []InfluenceNetwork `json:"influence_networks"`
	PriorityMatrix    PriorityMatrix     `json:"priority_matrix"`
	UsedFallback      bool               `json:"-"`
	TaskErrors        map[string]string  `json:"-"`
}

// Summary aggregates roster and synthesis into key takeaways.
type Summary struct {
	TotalStakeholders int      `json:"total_stakeholders"`
	ConsensusScore    float64  `json:"consensus_score"`
	ConflictScore     float64  `json:"conflict_score"`
	KeyInsights       []string `json:"key_insights"`
	Recommendations   []string `json:"recommendations"`
}

// Metadata records how stakeholder analysis was produced.
type Metadata struct {
	DetectionMethod    string    `json:"detection_method"`
	Confidence         float64   `json:"confidence"`
	IsMultiStakeholder bool      `json:"is_multi_stakeholder"`
	AnalyzedAt         time.Time `json:"analyzed_at"`
	SynthesisFallback  bool      `json:"synthesis_fallback,omitempty"`
	SummaryFallback    bool      `json:"summary_fallback,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Intelligence is the full stakeholder analysis attached to a completed job.
// A completed job always carries one, worst case an empty roster with
// Metadata.Error set.
type Intelligence struct {
	Stakeholders       Roster             `json:"stakeholders"`
	ConsensusAreas     []ConsensusArea    `json:"consensus_areas,omitempty"`
	ConflictZones      []ConflictZone     `json:"conflict_zones,omitempty"`
	InfluenceNetworks  []InfluenceNetwork `json:"influence_networks,omitempty"`
	PriorityMatrix     *PriorityMatrix    `json:"priority_matrix,omitempty"`
	Summary            *Summary           `json:"summary,omitempty"`
	ProcessingMetadata Metadata           `json:"processing_metadata"`
}

// Failed builds the degraded Intelligence used when stakeholder analysis
// cannot produce anything better.
func Failed(roster Roster, method string, errMsg string) *Intelligence {
	if roster == nil {
		roster = Roster{}
	}
	return &Intelligence{
		Stakeholders: roster,
		ProcessingMetadata: Metadata{
			DetectionMethod: method,
			AnalyzedAt:      time.Now().UTC(),
			Error:           errMsg,
		},
	}
}

func normalizeType(value string) string {
	switch value {
	case TypePrimaryCustomer, TypeSecondaryUser, TypeDecisionMaker, TypeInfluencer:
		return value
	default:
		return TypePrimaryCustomer
	}
}

func normalizeSeverity(value string) string {
	switch value {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return value
	default:
		return SeverityMedium
	}
}

func normalizeInfluenceType(value string) string {
	switch value {
	case InfluenceDecision, InfluenceOpinion, InfluenceAdoption, InfluenceResistance:
		return value
	default:
		return InfluenceOpinion
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
