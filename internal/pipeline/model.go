package pipeline

import "time"

// Job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Stage names, in execution order.
const (
	StagePreprocessing     = "preprocessing"
	StageAnalysis          = "analysis"
	StageThemeExtraction   = "theme_extraction"
	StagePatternDetection  = "pattern_detection"
	StageSentimentAnalysis = "sentiment_analysis"
	StagePersonaFormation  = "persona_formation"
	StageInsightGeneration = "insight_generation"
	StageStakeholders      = "stakeholder_analysis"
	StageCompletion        = "completion"
)

// StageOrder is the fixed stage sequence driven by the orchestrator.
var StageOrder = []string{
	StagePreprocessing,
	StageAnalysis,
	StageThemeExtraction,
	StagePatternDetection,
	StageSentimentAnalysis,
	StagePersonaFormation,
	StageInsightGeneration,
	StageStakeholders,
	StageCompletion,
}

// Stage states.
const (
	StagePending    = "pending"
	StageInProgress = "in_progress"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

// StageState tracks one stage of a job.
type StageState struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// Interview is one unit of normalized source material from the upload layer.
type Interview struct {
	FileName  string `json:"fileName"`
	Content   string `json:"content"`
	InputType string `json:"inputType"`
	FreeText  bool   `json:"freeText"`
}

// Config carries the caller-supplied analysis options.
type Config struct {
	UseEnhancedThemeAnalysis bool   `json:"useEnhancedThemeAnalysis"`
	UseReliabilityCheck      bool   `json:"useReliabilityCheck"`
	Industry                 string `json:"industry,omitempty"`
}

// Job is the persisted record of one analysis run. It is owned exclusively
// by the orchestrator and written as a whole record after every transition.
type Job struct {
	ID             string                `json:"id"`
	Status         string                `json:"status"`
	CurrentStage   string                `json:"currentStage"`
	Stages         map[string]StageState `json:"stages"`
	Progress       float64               `json:"progress"`
	Interviews     []Interview           `json:"interviews,omitempty"`
	Config         Config                `json:"config"`
	Result         map[string]any        `json:"result,omitempty"`
	ErrorCode      *string               `json:"errorCode,omitempty"`
	ErrorMessage   *string               `json:"errorMessage,omitempty"`
	ErrorRetryable *bool                 `json:"errorRetryable,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	StartedAt      *time.Time            `json:"startedAt,omitempty"`
	CompletedAt    *time.Time            `json:"completedAt,omitempty"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// clone returns a copy sharing no mutable state with the receiver. Repo
// snapshots must stay stable while the run goroutine keeps advancing the
// live record's stage map.
func (j Job) clone() Job {
	if j.Stages != nil {
		stages := make(map[string]StageState, len(j.Stages))
		for stage, state := range j.Stages {
			stages[stage] = state
		}
		j.Stages = stages
	}
	if j.Result != nil {
		result := make(map[string]any, len(j.Result))
		for key, val := range j.Result {
			result[key] = val
		}
		j.Result = result
	}
	if j.Interviews != nil {
		j.Interviews = append([]Interview(nil), j.Interviews...)
	}
	return j
}

func newStageStates() map[string]StageState {
	stages := make(map[string]StageState, len(StageOrder))
	for _, stage := range StageOrder {
		stages[stage] = StageState{Status: StagePending}
	}
	return stages
}

func stageRank(status string) int {
	switch status {
	case StagePending:
		return 0
	case StageInProgress:
		return 1
	case StageCompleted, StageFailed:
		return 2
	default:
		return 0
	}
}

// setStage records a stage transition. Stage states only move forward:
// a completed or failed stage never returns to pending or in_progress.
func (j *Job) setStage(stage, status string, progress float64, message string) {
	if j.Stages == nil {
		j.Stages = newStageStates()
	}
	current := j.Stages[stage]
	if stageRank(status) < stageRank(current.Status) {
		return
	}
	if progress < current.Progress {
		progress = current.Progress
	}
	j.Stages[stage] = StageState{Status: status, Progress: progress, Message: message}
}
