package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-backend/internal/cache"
	"insight-backend/internal/completion"
	"insight-backend/internal/results"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/stages"
	"insight-backend/internal/stakeholders"
)

const snapshotTTL = 30 * time.Minute

// Orchestrator drives jobs through the stage sequence. One job progresses
// sequentially, a single active stage at a time; the only parallel region
// is inside the cross-stakeholder synthesis.
type Orchestrator struct {
	Repo       Repo
	Cache      cache.Cache
	Completion completion.Client
	Scoring    stakeholders.ScoringStrategy

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(repo Repo, jobCache cache.Cache, client completion.Client) *Orchestrator {
	if client == nil {
		client = completion.Unavailable{}
	}
	return &Orchestrator{
		Repo:       repo,
		Cache:      jobCache,
		Completion: client,
		Scoring:    stakeholders.DefaultScoring{},
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Start enqueues a new analysis job and kicks off asynchronous processing.
// It returns as soon as the job record is persisted.
func (o *Orchestrator) Start(ctx context.Context, interviews []Interview, cfg Config) (Job, error) {
	if len(interviews) == 0 {
		return Job{}, errors.New("at least one interview is required")
	}
	hasContent := false
	for _, iv := range interviews {
		if strings.TrimSpace(iv.Content) != "" {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return Job{}, errors.New("interview content is required")
	}

	now := time.Now().UTC()
	job := Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		Stages:     newStageStates(),
		Interviews: interviews,
		Config:     cfg,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Repo.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("save job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	go o.run(runCtx, job.ID)

	return job, nil
}

// Cancel aborts an in-flight job. It reports whether a running job was found.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Get returns a job snapshot, preferring the cache for cheap polling.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("jobID is required")
	}
	if o.Cache != nil {
		if raw, ok, err := o.Cache.GetJobSnapshot(ctx, jobID); err == nil && ok {
			var job Job
			if err := json.Unmarshal(raw, &job); err == nil {
				return job, nil
			}
		}
	}
	return o.Repo.GetByID(ctx, jobID)
}

// List returns recent jobs newest-first.
func (o *Orchestrator) List(ctx context.Context, limit, offset int) ([]Job, error) {
	return o.Repo.List(ctx, limit, offset)
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
		delete(o.cancels, jobID)
	}
	o.mu.Unlock()
}

// persist writes the whole job record and mirrors it into the cache.
// Cache writes are best-effort; repo failures are fatal to the job.
func (o *Orchestrator) persist(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	if err := o.Repo.Update(ctx, *job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if o.Cache != nil {
		if raw, err := json.Marshal(job); err == nil {
			if err := o.Cache.SetJobSnapshot(ctx, job.ID, raw, snapshotTTL); err != nil {
				// Evict rather than leave a snapshot older than the repo:
				// pollers fall through to the repo on a miss.
				_ = o.Cache.Delete(ctx, cache.JobSnapshotKey(job.ID))
			}
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string) {
	defer o.release(jobID)
	defer func() {
		if r := recover(); r != nil {
			o.failJob(jobID, "", fmt.Errorf("panic: %v", r), nil)
		}
	}()

	startedAt := time.Now().UTC()
	job, err := o.Repo.GetByID(ctx, jobID)
	if err != nil {
		o.failJob(jobID, "", fmt.Errorf("load job: %w", err), &startedAt)
		return
	}

	job.Status = StatusProcessing
	job.StartedAt = &startedAt
	if err := o.persist(ctx, &job); err != nil {
		o.failJob(jobID, "", err, &startedAt)
		return
	}
	metrics.IncPipelineStarted()
	telemetry.Info("pipeline.status", map[string]any{
		"job_id":            job.ID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
		"interviews":        len(job.Interviews),
	})

	client := completion.NewRetrying(o.Completion, job.ID, "")
	extractor := stages.NewExtractor(client, job.Config.Industry, job.Config.UseEnhancedThemeAnalysis)

	var combined string
	var out results.StageOutputs

	steps := []struct {
		stage string
		fn    func(ctx context.Context, report func(float64, string)) error
	}{
		{StagePreprocessing, func(ctx context.Context, report func(float64, string)) error {
			combined = combineInterviews(job.Interviews)
			if strings.TrimSpace(combined) == "" {
				return errors.New("empty content after preprocessing")
			}
			report(1, fmt.Sprintf("%d interviews, %d characters", len(job.Interviews), len(combined)))
			return nil
		}},
		{StageAnalysis, func(ctx context.Context, report func(float64, string)) error {
			return o.runAnalysisStage(ctx, &job, client, combined, report)
		}},
		{StageThemeExtraction, func(ctx context.Context, report func(float64, string)) error {
			themes, err := extractor.Themes(ctx, combined)
			if err != nil {
				return err
			}
			out.Themes = themes
			report(1, fmt.Sprintf("%d themes", len(themes)))
			return nil
		}},
		{StagePatternDetection, func(ctx context.Context, report func(float64, string)) error {
			patterns, err := extractor.Patterns(ctx, combined)
			if err != nil {
				return err
			}
			out.Patterns = patterns
			report(1, fmt.Sprintf("%d patterns", len(patterns)))
			return nil
		}},
		{StageSentimentAnalysis, func(ctx context.Context, report func(float64, string)) error {
			profile, err := extractor.Sentiment(ctx, combined)
			if err != nil {
				return err
			}
			out.Sentiment = profile
			report(1, "sentiment profiled")
			return nil
		}},
		{StagePersonaFormation, func(ctx context.Context, report func(float64, string)) error {
			personas, err := extractor.Personas(ctx, combined)
			if err != nil {
				return err
			}
			out.Personas = personas
			report(1, fmt.Sprintf("%d personas", len(personas)))
			return nil
		}},
		{StageInsightGeneration, func(ctx context.Context, report func(float64, string)) error {
			prior := map[string]any{
				"themes":   out.Themes,
				"patterns": out.Patterns,
			}
			insights, err := extractor.Insights(ctx, combined, prior)
			if err != nil {
				return err
			}
			out.Insights = insights
			report(1, fmt.Sprintf("%d insights", len(insights)))
			return nil
		}},
		{StageStakeholders, func(ctx context.Context, report func(float64, string)) error {
			return o.runStakeholderStage(ctx, &job, client, combined, &out, report)
		}},
	}

	for _, step := range steps {
		if err := o.runStage(ctx, &job, step.stage, step.fn); err != nil {
			o.failJob(jobID, step.stage, err, &startedAt)
			return
		}
	}

	// Completion: merge, normalize, and land the terminal record.
	job.CurrentStage = StageCompletion
	job.applyProgress(StageCompletion, 0, "merging results")
	if err := o.persist(ctx, &job); err != nil {
		o.failJob(jobID, StageCompletion, err, &startedAt)
		return
	}

	merged, err := results.Merge(out)
	if err != nil {
		o.failJob(jobID, StageCompletion, fmt.Errorf("merge results: %w", err), &startedAt)
		return
	}

	completedAt := time.Now().UTC()
	job.Result = merged
	job.Status = StatusCompleted
	job.CompletedAt = &completedAt
	job.applyProgress(StageCompletion, 1, "completed")
	job.Progress = 1
	if err := o.persist(ctx, &job); err != nil {
		o.failJob(jobID, StageCompletion, err, &startedAt)
		return
	}
	metrics.IncPipelineCompleted()
	metrics.ObservePipelineDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("pipeline.status", map[string]any{
		"job_id":            job.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
}

// runStage executes one stage with persisted begin/end transitions.
// A stage error is recoverable: the stage is marked failed and the pipeline
// continues with whatever partial output the step left behind. Only
// persistence errors and cancellation abort the job.
func (o *Orchestrator) runStage(ctx context.Context, job *Job, stage string, fn func(ctx context.Context, report func(float64, string)) error) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	job.CurrentStage = stage
	job.applyProgress(stage, 0, "started")
	if err := o.persist(ctx, job); err != nil {
		return err
	}

	var persistErr error
	report := func(fraction float64, message string) {
		job.applyProgress(stage, fraction, message)
		if err := o.persist(ctx, job); err != nil && persistErr == nil {
			persistErr = err
		}
	}

	stageErr := fn(ctx, report)
	if persistErr != nil {
		return persistErr
	}
	if stageErr != nil {
		if errors.Is(stageErr, context.Canceled) || ctx.Err() != nil {
			return ErrCancelled
		}
		code, _ := classifyFailure(stageErr)
		job.setStage(stage, StageFailed, job.Stages[stage].Progress, sanitizeError(stageErr))
		metrics.IncStageFailed()
		telemetry.Error("pipeline.stage_failed", map[string]any{
			"job_id": job.ID,
			"stage":  stage,
			"code":   code,
			"error":  sanitizeError(stageErr),
		})
		return o.persist(ctx, job)
	}

	job.applyProgress(stage, 1, job.Stages[stage].Message)
	return o.persist(ctx, job)
}

// runAnalysisStage performs the base corpus pass: deterministic stats plus
// an optional capability-backed reliability check.
func (o *Orchestrator) runAnalysisStage(ctx context.Context, job *Job, client completion.Client, combined string, report func(float64, string)) error {
	words := len(strings.Fields(combined))
	report(0.5, fmt.Sprintf("%d words across %d interviews", words, len(job.Interviews)))

	if job.Config.UseReliabilityCheck && client != nil && client.Available() {
		raw, err := client.Complete(ctx, completion.Request{
			Task:         "reliability_check",
			Instructions: "Assess whether this material is substantive enough for multi-facet analysis. Return ok (bool) and reason.",
			Content:      combined,
			Shape:        `{"ok":true,"reason":""}`,
		})
		if err != nil {
			return err
		}
		var check struct {
			OK     bool   `json:"ok"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(raw, &check); err != nil {
			return fmt.Errorf("reliability payload: %w", err)
		}
		if !check.OK {
			report(1, "reliability concern: "+check.Reason)
			return nil
		}
	}
	report(1, "analysis prepared")
	return nil
}

// runStakeholderStage runs detection, and when the roster is genuinely
// multi-stakeholder, the concurrent synthesis and the summary. It always
// leaves a non-nil Intelligence in the outputs, even on failure.
func (o *Orchestrator) runStakeholderStage(ctx context.Context, job *Job, client completion.Client, combined string, out *results.StageOutputs, report func(float64, string)) error {
	detector := stakeholders.NewChain(client, o.Scoring)
	inputs := make([]stakeholders.Input, 0, len(job.Interviews))
	for _, iv := range job.Interviews {
		inputs = append(inputs, stakeholders.Input{FileName: iv.FileName, Content: iv.Content})
	}

	detection, err := detector.DetectAll(ctx, inputs)
	if err != nil {
		out.Intelligence = stakeholders.Failed(nil, "", sanitizeError(err))
		metrics.IncStakeholderFallback()
		return err
	}
	report(0.3, fmt.Sprintf("%d stakeholders via %s", len(detection.Roster), detection.Method))
	metrics.IncStakeholdersDetected(len(detection.Roster))

	intel := &stakeholders.Intelligence{
		Stakeholders: detection.Roster,
		ProcessingMetadata: stakeholders.Metadata{
			DetectionMethod:    detection.Method,
			Confidence:         detection.Confidence,
			IsMultiStakeholder: detection.IsMultiStakeholder,
			AnalyzedAt:         time.Now().UTC(),
		},
	}
	out.Intelligence = intel

	if !detection.IsMultiStakeholder || len(detection.Roster) < 2 {
		// Single voice: the unenhanced analysis stands on its own.
		report(1, "single stakeholder, synthesis skipped")
		return nil
	}

	synthesizer := &stakeholders.Synthesizer{Completion: client, Scoring: o.Scoring}
	synthesis, err := synthesizer.Synthesize(ctx, job.ID, detection.Roster, combined)
	if err != nil {
		intel.ProcessingMetadata.Error = sanitizeError(err)
		metrics.IncStakeholderFallback()
		return err
	}
	intel.ConsensusAreas = synthesis.ConsensusAreas
	intel.ConflictZones = synthesis.ConflictZones
	intel.InfluenceNetworks = synthesis.InfluenceNetworks
	matrix := synthesis.PriorityMatrix
	intel.PriorityMatrix = &matrix
	intel.ProcessingMetadata.SynthesisFallback = synthesis.UsedFallback
	if synthesis.UsedFallback {
		metrics.IncStakeholderFallback()
	}
	report(0.7, "synthesis joined")

	summarizer := &stakeholders.Summarizer{Completion: client, Scoring: o.Scoring}
	summary, usedFallback := summarizer.Summarize(ctx, job.ID, detection.Roster, synthesis)
	intel.Summary = summary
	intel.ProcessingMetadata.SummaryFallback = usedFallback
	report(1, fmt.Sprintf("%d stakeholders synthesized", len(detection.Roster)))
	return nil
}

func (o *Orchestrator) failJob(jobID, stage string, err error, startedAt *time.Time) {
	code, retryable := classifyFailure(err)
	msg := sanitizeError(err)
	if stage != "" {
		msg = stage + ": " + msg
	}
	completedAt := time.Now().UTC()

	ctx := context.Background()
	job, loadErr := o.Repo.GetByID(ctx, jobID)
	if loadErr != nil {
		telemetry.Error("pipeline.fail_update", map[string]any{
			"job_id": jobID,
			"error":  loadErr.Error(),
			"orig":   msg,
		})
		return
	}
	job.Status = StatusFailed
	job.ErrorCode = &code
	job.ErrorMessage = &msg
	job.ErrorRetryable = &retryable
	job.CompletedAt = &completedAt
	if stage != "" {
		job.setStage(stage, StageFailed, job.Stages[stage].Progress, msg)
	}
	if persistErr := o.persist(ctx, &job); persistErr != nil {
		telemetry.Error("pipeline.fail_update", map[string]any{
			"job_id": jobID,
			"error":  persistErr.Error(),
			"orig":   msg,
		})
	}
	metrics.IncPipelineFailed()
	if startedAt != nil {
		metrics.ObservePipelineDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("pipeline.status", map[string]any{
		"job_id":            jobID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"stage":             stage,
		"code":              code,
		"error":             msg,
	})
}

func combineInterviews(interviews []Interview) string {
	var b strings.Builder
	for i, iv := range interviews {
		if strings.TrimSpace(iv.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		name := iv.FileName
		if name == "" {
			name = fmt.Sprintf("input %d", i+1)
		}
		b.WriteString("=== ")
		b.WriteString(name)
		b.WriteString(" ===\n")
		b.WriteString(iv.Content)
	}
	return b.String()
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}
