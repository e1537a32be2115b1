package pipeline

// stageWeights maps each stage to the overall progress reached when that
// stage completes. Intra-stage fractions interpolate toward the next weight.
var stageWeights = map[string]float64{
	StagePreprocessing:     0.1,
	StageAnalysis:          0.2,
	StageThemeExtraction:   0.4,
	StagePatternDetection:  0.6,
	StageSentimentAnalysis: 0.7,
	StagePersonaFormation:  0.8,
	StageInsightGeneration: 0.85,
	StageStakeholders:      0.9,
	StageCompletion:        1.0,
}

// preCompletionCap keeps overall progress below 1.0 until the completion
// stage actually finishes, whatever the intra-stage fractions report.
const preCompletionCap = 0.95

func previousWeight(stage string) float64 {
	prev := 0.0
	for _, s := range StageOrder {
		if s == stage {
			return prev
		}
		prev = stageWeights[s]
	}
	return prev
}

// overallProgress computes the job-level progress for a fractional position
// inside the given stage. fraction is clamped to [0,1].
func overallProgress(stage string, fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	base := previousWeight(stage)
	target := stageWeights[stage]
	progress := base + fraction*(target-base)
	if stage != StageCompletion || fraction < 1 {
		if progress > preCompletionCap {
			progress = preCompletionCap
		}
	}
	return progress
}

// applyProgress records stage-level and overall progress on the job.
// Overall progress is monotonically non-decreasing: a concurrent reader
// polling the persisted record never observes it move backward.
func (j *Job) applyProgress(stage string, fraction float64, message string) {
	status := StageInProgress
	if fraction >= 1 {
		status = StageCompleted
	}
	j.setStage(stage, status, fraction, message)
	if progress := overallProgress(stage, fraction); progress > j.Progress {
		j.Progress = progress
	}
}
