package stakeholders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"insight-backend/internal/completion"
	"insight-backend/internal/shared/telemetry"
)

// ErrDetectorFailed is returned when a detector cannot produce a roster at all.
// Fewer than two stakeholders is not a failure; it is a legitimate outcome.
var ErrDetectorFailed = errors.New("stakeholder detection failed")

// Input is one unit of source material for detection.
type Input struct {
	FileName string
	Content  string
}

// Detector produces a roster from source material. Implementations form an
// ordered chain composed by the orchestrator: the first detector to yield
// two or more stakeholders wins, later detectors back-fill otherwise.
type Detector interface {
	Detect(ctx context.Context, input Input) (Detection, error)
	Name() string
}

// Chain runs detectors in order. The first detection with a multi-stakeholder
// roster is returned; otherwise the best single-stakeholder detection seen.
type Chain struct {
	Detectors []Detector
	Scoring   ScoringStrategy
}

// NewChain composes the standard two-tier chain: content-based detection via
// the completion capability, then heuristic pattern matching.
func NewChain(client completion.Client, scoring ScoringStrategy) *Chain {
	if scoring == nil {
		scoring = DefaultScoring{}
	}
	return &Chain{
		Detectors: []Detector{
			&ContentDetector{Completion: client},
			&HeuristicDetector{},
		},
		Scoring: scoring,
	}
}

// Detect runs the chain against one input.
func (c *Chain) Detect(ctx context.Context, input Input) (Detection, error) {
	var best Detection
	var seen bool
	for _, d := range c.Detectors {
		det, err := d.Detect(ctx, input)
		if err != nil {
			telemetry.Info("stakeholders.detector_skipped", map[string]any{
				"detector": d.Name(),
				"file":     input.FileName,
				"error":    err.Error(),
			})
			continue
		}
		if len(det.Roster) >= 2 {
			det.IsMultiStakeholder = det.Confidence > c.Scoring.MultiStakeholderThreshold()
			return det, nil
		}
		if !seen || len(det.Roster) > len(best.Roster) {
			best = det
			seen = true
		}
	}
	if !seen {
		return Detection{}, ErrDetectorFailed
	}
	best.IsMultiStakeholder = false
	return best, nil
}

// Name identifies the chain in logs.
func (c *Chain) Name() string { return "chain" }

// DetectAll runs the chain independently per file, then namespaces ids with a
// file index prefix and averages confidence across files.
func (c *Chain) DetectAll(ctx context.Context, inputs []Input) (Detection, error) {
	if len(inputs) == 0 {
		return Detection{}, ErrDetectorFailed
	}
	if len(inputs) == 1 {
		return c.Detect(ctx, inputs[0])
	}

	var merged Detection
	var confidenceSum float64
	var detected int
	method := MethodPatternMatching
	for i, input := range inputs {
		det, err := c.Detect(ctx, input)
		if err != nil {
			continue
		}
		prefix := fmt.Sprintf("File%d_", i+1)
		for _, s := range det.Roster {
			s.ID = prefix + s.ID
			merged.Roster = append(merged.Roster, s)
		}
		confidenceSum += det.Confidence
		detected++
		if det.Method == MethodContentAnalysis {
			method = MethodContentAnalysis
		}
	}
	if detected == 0 {
		return Detection{}, ErrDetectorFailed
	}
	merged.Method = method
	merged.Confidence = clamp01(confidenceSum / float64(detected))
	merged.IsMultiStakeholder = len(merged.Roster) >= 2 && merged.Confidence > c.Scoring.MultiStakeholderThreshold()
	return merged, nil
}

// ContentDetector asks the completion capability to name the speakers.
type ContentDetector struct {
	Completion completion.Client
}

// contentConfidence is fixed for capability-based detection; the model does
// not report a calibrated roster-level confidence.
const contentConfidence = 0.9

// Name identifies the detector in logs.
func (d *ContentDetector) Name() string { return MethodContentAnalysis }

// Detect requests a stakeholder roster from the completion capability.
func (d *ContentDetector) Detect(ctx context.Context, input Input) (Detection, error) {
	if d.Completion == nil || !d.Completion.Available() {
		return Detection{}, fmt.Errorf("%w: capability unavailable", ErrDetectorFailed)
	}
	raw, err := d.Completion.Complete(ctx, completion.Request{
		Task: "stakeholder_detection",
		Instructions: "Identify every distinct stakeholder speaking in this material. " +
			"For each, return id, type (primary_customer|secondary_user|decision_maker|influencer), " +
			"confidence (0-1), demographics, individual_insights, and influence_metrics (named 0-1 scores).",
		Content: input.Content,
		Shape:   `{"stakeholders":[{"id":"","type":"","confidence":0,"demographics":{},"individual_insights":{},"influence_metrics":{}}]}`,
	})
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrDetectorFailed, err)
	}
	roster, err := DecodeRoster(raw)
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrDetectorFailed, err)
	}
	return Detection{
		Roster:     roster,
		Method:     MethodContentAnalysis,
		Confidence: contentConfidence,
	}, nil
}

// HeuristicDetector scans for structural interview markers without any
// network dependency.
type HeuristicDetector struct{}

var (
	segmentPattern = regexp.MustCompile(`(?im)^\s*(?:interview\s*#?\s*\d+|persona\s*:|participant\s*[:#]?\s*\w+)`)
	namePattern    = regexp.MustCompile(`(?im)name\s*[:\-]\s*([A-Z][A-Za-z .'-]+)`)
	agePattern     = regexp.MustCompile(`(?im)age\s*[:\-]?\s*(\d{1,3})`)
	rolePattern    = regexp.MustCompile(`(?im)(?:role|title|occupation|position)\s*[:\-]\s*([^\n,;]+)`)
)

var typeKeywords = []struct {
	stakeholderType string
	words           []string
}{
	{TypeDecisionMaker, []string{"decision", "budget", "approve", "sign-off", "director", "executive", "vp", "chief", "head of"}},
	{TypeInfluencer, []string{"recommend", "influence", "advocate", "advise", "consultant", "champion"}},
	{TypeSecondaryUser, []string{"occasionally", "sometimes", "support", "assist", "secondary", "backup"}},
}

// Name identifies the detector in logs.
func (d *HeuristicDetector) Name() string { return MethodPatternMatching }

// Detect extracts stakeholders from structural markers in the text.
func (d *HeuristicDetector) Detect(ctx context.Context, input Input) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	segments := splitSegments(input.Content)
	if len(segments) == 0 {
		return Detection{}, fmt.Errorf("%w: no structural markers", ErrDetectorFailed)
	}

	roster := make(Roster, 0, len(segments))
	patternMatches := 0
	keywordMatches := 0
	for i, segment := range segments {
		patternMatches++
		s := Stakeholder{
			ID:               fmt.Sprintf("stakeholder_%d", i+1),
			Demographics:     map[string]string{},
			Insights:         map[string]any{},
			InfluenceMetrics: map[string]float64{},
		}
		fieldMatches := 0
		if m := namePattern.FindStringSubmatch(segment); m != nil {
			s.Demographics["name"] = strings.TrimSpace(m[1])
			s.ID = slugID(m[1], i+1)
			fieldMatches++
		}
		if m := agePattern.FindStringSubmatch(segment); m != nil {
			s.Demographics["age"] = m[1]
			fieldMatches++
		}
		if m := rolePattern.FindStringSubmatch(segment); m != nil {
			s.Demographics["role"] = strings.TrimSpace(m[1])
			fieldMatches++
		}
		s.Type, keywordMatches = classifyType(segment, keywordMatches)
		s.Confidence = clamp01(0.5 + 0.15*float64(fieldMatches))
		roster = append(roster, s)
	}

	confidence := clamp01(float64(patternMatches)*0.3 + float64(keywordMatches)*0.1)
	if len(roster) >= 2 {
		// Boost roster-level confidence with the mean of the per-stakeholder
		// confidences when the structure is corroborated by multiple entries.
		var sum float64
		for _, s := range roster {
			sum += s.Confidence
		}
		confidence = clamp01(confidence + 0.2*(sum/float64(len(roster))))
	}

	return Detection{
		Roster:     roster,
		Method:     MethodPatternMatching,
		Confidence: confidence,
	}, nil
}

func splitSegments(content string) []string {
	locs := segmentPattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}
	segments := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := strings.TrimSpace(content[loc[0]:end])
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func classifyType(segment string, keywordMatches int) (string, int) {
	lower := strings.ToLower(segment)
	for _, set := range typeKeywords {
		for _, word := range set.words {
			if strings.Contains(lower, word) {
				return set.stakeholderType, keywordMatches + 1
			}
		}
	}
	return TypePrimaryCustomer, keywordMatches
}

func slugID(name string, index int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.':
			// Collapse separator runs so "J.R." stays a single break.
			if s := b.String(); s != "" && s[len(s)-1] != '_' {
				b.WriteByte('_')
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fmt.Sprintf("stakeholder_%d", index)
	}
	return out
}
