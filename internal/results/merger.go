package results

import (
	"encoding/json"

	"insight-backend/internal/stages"
	"insight-backend/internal/stakeholders"
)

// NormalizedTheme is a theme with bounded numeric fields.
type NormalizedTheme struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Sentiment        float64  `json:"sentiment"`
	Frequency        float64  `json:"frequency"`
	SupportingQuotes []string `json:"supporting_quotes"`
}

// NormalizedPattern is a pattern with bounded numeric fields.
type NormalizedPattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sentiment   float64  `json:"sentiment"`
	Frequency   float64  `json:"frequency"`
	Examples    []string `json:"examples"`
}

// NormalizedSentiment is the bounded sentiment profile.
type NormalizedSentiment struct {
	Overall   float64            `json:"overall"`
	ByTopic   map[string]float64 `json:"by_topic"`
	Positives []string           `json:"positives"`
	Negatives []string           `json:"negatives"`
}

// Result is the single merged record attached to a completed job.
type Result struct {
	Themes                  []NormalizedTheme          `json:"themes"`
	Patterns                []NormalizedPattern        `json:"patterns"`
	Sentiment               NormalizedSentiment        `json:"sentiment"`
	Personas                []stages.Persona           `json:"personas"`
	Insights                []stages.Insight           `json:"insights"`
	StakeholderIntelligence *stakeholders.Intelligence `json:"stakeholder_intelligence"`
}

// StageOutputs collects everything the pipeline produced, possibly partial.
type StageOutputs struct {
	Themes       []stages.Theme
	Patterns     []stages.Pattern
	Sentiment    *stages.SentimentProfile
	Personas     []stages.Persona
	Insights     []stages.Insight
	Intelligence *stakeholders.Intelligence
}

// Merge folds the stage outputs into one result record with bounded,
// schema-consistent values. stakeholder_intelligence is never nil in the
// merged record, even when stakeholder analysis failed entirely.
func Merge(out StageOutputs) (map[string]any, error) {
	result := Result{
		Themes:    normalizeThemes(out.Themes),
		Patterns:  normalizePatterns(out.Patterns),
		Sentiment: normalizeSentimentProfile(out.Sentiment),
		Personas:  ensurePersonas(out.Personas),
		Insights:  ensureInsights(out.Insights),
	}
	result.StakeholderIntelligence = out.Intelligence
	if result.StakeholderIntelligence == nil {
		result.StakeholderIntelligence = stakeholders.Failed(nil, "", "stakeholder analysis produced no output")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func normalizeThemes(themes []stages.Theme) []NormalizedTheme {
	out := make([]NormalizedTheme, 0, len(themes))
	for _, theme := range themes {
		out = append(out, NormalizedTheme{
			Name:             theme.Name,
			Description:      theme.Description,
			Sentiment:        NormalizeSentiment(theme.Sentiment),
			Frequency:        NormalizeFrequency(theme.Frequency),
			SupportingQuotes: ensureStringSlice(theme.SupportingQuotes),
		})
	}
	return out
}

func normalizePatterns(patterns []stages.Pattern) []NormalizedPattern {
	out := make([]NormalizedPattern, 0, len(patterns))
	for _, pattern := range patterns {
		out = append(out, NormalizedPattern{
			Name:        pattern.Name,
			Description: pattern.Description,
			Sentiment:   NormalizeSentiment(pattern.Sentiment),
			Frequency:   NormalizeFrequency(pattern.Frequency),
			Examples:    ensureStringSlice(pattern.Examples),
		})
	}
	return out
}

func normalizeSentimentProfile(profile *stages.SentimentProfile) NormalizedSentiment {
	out := NormalizedSentiment{
		ByTopic:   map[string]float64{},
		Positives: []string{},
		Negatives: []string{},
	}
	if profile == nil {
		return out
	}
	out.Overall = NormalizeSentiment(profile.Overall)
	for topic, value := range profile.ByTopic {
		out.ByTopic[topic] = NormalizeSentiment(value)
	}
	out.Positives = ensureStringSlice(profile.Positives)
	out.Negatives = ensureStringSlice(profile.Negatives)
	return out
}

func ensurePersonas(personas []stages.Persona) []stages.Persona {
	if personas == nil {
		return []stages.Persona{}
	}
	for i := range personas {
		personas[i].Goals = ensureStringSlice(personas[i].Goals)
		personas[i].PainPoints = ensureStringSlice(personas[i].PainPoints)
		personas[i].Quotes = ensureStringSlice(personas[i].Quotes)
	}
	return personas
}

func ensureInsights(insights []stages.Insight) []stages.Insight {
	if insights == nil {
		return []stages.Insight{}
	}
	return insights
}

func ensureStringSlice(value []string) []string {
	if value == nil {
		return []string{}
	}
	return value
}
