package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"insight-backend/internal/completion"
)

// Extractor is a thin adapter between the pipeline stages and the
// structured completion capability.
type Extractor struct {
	Completion completion.Client
	Industry   string
	Enhanced   bool
}

// NewExtractor constructs an Extractor.
func NewExtractor(client completion.Client, industry string, enhanced bool) *Extractor {
	return &Extractor{Completion: client, Industry: industry, Enhanced: enhanced}
}

// Themes extracts recurring topics.
func (e *Extractor) Themes(ctx context.Context, content string) ([]Theme, error) {
	instructions := "Extract the recurring themes from this material. For each theme return name, description, sentiment (-1 to 1), frequency (0-1), and supporting_quotes."
	if e.Enhanced {
		instructions += " Include secondary themes and note where themes overlap."
	}
	raw, err := e.complete(ctx, "theme_extraction", instructions,
		`{"themes":[{"name":"","description":"","sentiment":0,"frequency":0,"supporting_quotes":[]}]}`, content)
	if err != nil {
		return nil, err
	}
	return decodeList[Theme](raw, "themes")
}

// Patterns extracts recurring behaviors.
func (e *Extractor) Patterns(ctx context.Context, content string) ([]Pattern, error) {
	raw, err := e.complete(ctx, "pattern_detection",
		"Identify recurring behavioral patterns across respondents. For each return name, description, sentiment (-1 to 1), frequency (0-1), and examples.",
		`{"patterns":[{"name":"","description":"","sentiment":0,"frequency":0,"examples":[]}]}`, content)
	if err != nil {
		return nil, err
	}
	return decodeList[Pattern](raw, "patterns")
}

// Sentiment reads the overall emotional tone.
func (e *Extractor) Sentiment(ctx context.Context, content string) (*SentimentProfile, error) {
	raw, err := e.complete(ctx, "sentiment_analysis",
		"Assess the overall sentiment of this material. Return overall (-1 to 1), by_topic (topic to score), positives, and negatives.",
		`{"overall":0,"by_topic":{},"positives":[],"negatives":[]}`, content)
	if err != nil {
		return nil, err
	}
	var profile SentimentProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("sentiment payload: %w", err)
	}
	if profile.ByTopic == nil {
		profile.ByTopic = map[string]any{}
	}
	if profile.Positives == nil {
		profile.Positives = []string{}
	}
	if profile.Negatives == nil {
		profile.Negatives = []string{}
	}
	return &profile, nil
}

// Personas synthesizes respondent archetypes.
func (e *Extractor) Personas(ctx context.Context, content string) ([]Persona, error) {
	raw, err := e.complete(ctx, "persona_formation",
		"Synthesize respondent personas from this material. For each return name, description, goals, pain_points, and quotes.",
		`{"personas":[{"name":"","description":"","goals":[],"pain_points":[],"quotes":[]}]}`, content)
	if err != nil {
		return nil, err
	}
	return decodeList[Persona](raw, "personas")
}

// Insights derives actionable takeaways from the earlier stage outputs.
func (e *Extractor) Insights(ctx context.Context, content string, priorOutputs any) ([]Insight, error) {
	payload := content
	if priorOutputs != nil {
		if encoded, err := json.Marshal(priorOutputs); err == nil {
			payload = "Prior stage outputs:\n" + string(encoded) + "\n\nSource material:\n" + content
		}
	}
	raw, err := e.complete(ctx, "insight_generation",
		"Derive actionable insights from this analysis. For each return title, description, impact (low|medium|high), and recommendation.",
		`{"insights":[{"title":"","description":"","impact":"","recommendation":""}]}`, payload)
	if err != nil {
		return nil, err
	}
	return decodeList[Insight](raw, "insights")
}

func (e *Extractor) complete(ctx context.Context, task, instructions, shape, content string) (json.RawMessage, error) {
	if e.Completion == nil || !e.Completion.Available() {
		return nil, completion.ErrUnavailable
	}
	if strings.TrimSpace(e.Industry) != "" {
		instructions += " The material comes from the " + e.Industry + " industry; use its terminology."
	}
	return e.Completion.Complete(ctx, completion.Request{
		Task:         task,
		Instructions: instructions,
		Content:      content,
		Shape:        shape,
	})
}

// decodeList accepts either a keyed envelope or a bare JSON array.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if inner, ok := envelope[key]; ok {
			var items []T
			if err := json.Unmarshal(inner, &items); err != nil {
				return nil, fmt.Errorf("%s payload: %w", key, err)
			}
			return items, nil
		}
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s payload matches no known shape", key)
	}
	return items, nil
}
