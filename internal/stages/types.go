package stages

// Stage outputs keep sentiment and frequency loosely typed on purpose: the
// completion capability returns them as numbers or strings depending on the
// provider, and the result normalizer owns the coercion and clamping.

// Theme is one recurring topic extracted from the source material.
type Theme struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Sentiment        any      `json:"sentiment"`
	Frequency        any      `json:"frequency"`
	SupportingQuotes []string `json:"supporting_quotes"`
}

// Pattern is a recurring behavior observed across respondents.
type Pattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sentiment   any      `json:"sentiment"`
	Frequency   any      `json:"frequency"`
	Examples    []string `json:"examples"`
}

// SentimentProfile is the overall emotional read of the material.
type SentimentProfile struct {
	Overall   any            `json:"overall"`
	ByTopic   map[string]any `json:"by_topic"`
	Positives []string       `json:"positives"`
	Negatives []string       `json:"negatives"`
}

// Persona is a synthesized archetype of a respondent group.
type Persona struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Goals       []string `json:"goals"`
	PainPoints  []string `json:"pain_points"`
	Quotes      []string `json:"quotes"`
}

// Insight is an actionable takeaway derived from the earlier stages.
type Insight struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}
