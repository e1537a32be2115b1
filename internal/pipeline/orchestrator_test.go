package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"insight-backend/internal/completion"
	"insight-backend/internal/completion/mock"
	"insight-backend/internal/results"
)

var happyPathResponses = map[string]string{
	"theme_extraction":      `{"themes":[{"name":"Speed","description":"users value fast turnaround","sentiment":0.5,"frequency":0.8,"supporting_quotes":["it saves me hours"]}]}`,
	"pattern_detection":     `{"patterns":[{"name":"Workaround","description":"spreadsheets fill the gaps","sentiment":"-0.2","frequency":1.4,"examples":[]}]}`,
	"sentiment_analysis":    `{"overall":0.25,"by_topic":{"speed":0.9},"positives":["fast"],"negatives":["price"]}`,
	"persona_formation":     `{"personas":[{"name":"Power user","description":"daily heavy usage","goals":["automate reporting"],"pain_points":[],"quotes":[]}]}`,
	"insight_generation":    `{"insights":[{"title":"Invest in speed","description":"speed drives retention","impact":"high","recommendation":"profile slow paths"}]}`,
	"stakeholder_detection": `{"stakeholders":[{"id":"alice","type":"decision_maker","confidence":0.9,"demographics":{"role":"VP Operations"},"individual_insights":{"pain":"cost"},"influence_metrics":{"decision_power":0.9}},{"id":"bob","type":"primary_customer","confidence":"0.8","demographics":{},"individual_insights":{},"influence_metrics":{}}]}`,
	"consensus_areas":       `{"consensus_areas":[{"topic":"Usability","agreement_level":0.8,"stakeholders":["alice","bob"],"shared_insights":["both praise the UI"],"business_impact":"adoption"}]}`,
	"conflict_zones":        `{"conflict_zones":[{"topic":"Pricing","stakeholders":["alice","bob"],"severity":"high","resolutions":["joint workshop"],"business_risk":"churn"}]}`,
	"influence_networks":    `{"influence_networks":[{"influencer":"alice","influenced":["bob"],"influence_type":"decision","strength":0.9,"pathway":"organizational authority"}]}`,
	"multi_stakeholder_summary": `{"consensus_score":0.8,"conflict_score":0.4,` +
		`"key_insights":["strong agreement on usability","pricing is contested","alice controls adoption"],` +
		`"recommendations":["align on pricing","ship usability wins","brief alice first"]}`,
}

func waitForTerminal(t *testing.T, repo Repo, jobID string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("load job: %v", err)
		}
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return Job{}
}

func decodeResult(t *testing.T, job Job) results.Result {
	t.Helper()
	payload, err := json.Marshal(job.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var result results.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return result
}

func TestOrchestratorHappyPathMultiStakeholder(t *testing.T) {
	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, mock.ByTask(happyPathResponses, `{}`))

	job, err := o.Start(context.Background(), []Interview{
		{FileName: "interviews.txt", Content: "Interview #1\nName: Alice\n\nInterview #2\nName: Bob\n"},
	}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected queued at submit, got %s", job.Status)
	}

	final := waitForTerminal(t, repo, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", final.Status, final.ErrorMessage)
	}
	if final.Progress != 1 {
		t.Fatalf("expected progress 1, got %f", final.Progress)
	}
	for _, stage := range StageOrder {
		if final.Stages[stage].Status != StageCompleted {
			t.Fatalf("stage %s not completed: %+v", stage, final.Stages[stage])
		}
	}
	if final.CompletedAt == nil || final.StartedAt == nil {
		t.Fatalf("expected timestamps on completed job")
	}

	result := decodeResult(t, final)
	if len(result.Themes) != 1 {
		t.Fatalf("expected 1 theme, got %d", len(result.Themes))
	}
	// Unit-scale sentiment remaps onto [-1,1].
	if result.Themes[0].Sentiment != 0 {
		t.Fatalf("expected theme sentiment 0, got %f", result.Themes[0].Sentiment)
	}
	if result.Patterns[0].Sentiment != -0.2 {
		t.Fatalf("expected pattern sentiment -0.2, got %f", result.Patterns[0].Sentiment)
	}
	if result.Patterns[0].Frequency != 1 {
		t.Fatalf("expected clamped frequency 1, got %f", result.Patterns[0].Frequency)
	}

	intel := result.StakeholderIntelligence
	if intel == nil {
		t.Fatalf("expected stakeholder intelligence")
	}
	if len(intel.Stakeholders) != 2 {
		t.Fatalf("expected 2 stakeholders, got %d", len(intel.Stakeholders))
	}
	if !intel.ProcessingMetadata.IsMultiStakeholder {
		t.Fatalf("expected multi-stakeholder metadata")
	}
	if intel.ProcessingMetadata.DetectionMethod != "content_analysis" {
		t.Fatalf("unexpected detection method %s", intel.ProcessingMetadata.DetectionMethod)
	}
	if len(intel.ConsensusAreas) != 1 || intel.ConsensusAreas[0].Topic != "Usability" {
		t.Fatalf("unexpected consensus areas: %+v", intel.ConsensusAreas)
	}
	if intel.PriorityMatrix == nil {
		t.Fatalf("expected priority matrix")
	}
	found := false
	for _, id := range intel.PriorityMatrix.KeyPlayers {
		if id == "alice" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice among key players, got %+v", intel.PriorityMatrix)
	}
	if intel.Summary == nil || intel.Summary.TotalStakeholders != 2 {
		t.Fatalf("unexpected summary: %+v", intel.Summary)
	}
	if intel.ProcessingMetadata.SynthesisFallback || intel.ProcessingMetadata.SummaryFallback {
		t.Fatalf("expected no fallbacks on happy path")
	}
}

func TestOrchestratorSingleStakeholderSkipsSynthesis(t *testing.T) {
	responses := map[string]string{}
	for task, payload := range happyPathResponses {
		responses[task] = payload
	}
	responses["stakeholder_detection"] = `{"stakeholders":[{"id":"solo","type":"primary_customer","confidence":0.9,"demographics":{},"individual_insights":{},"influence_metrics":{}}]}`

	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, mock.ByTask(responses, `{}`))

	job, err := o.Start(context.Background(), []Interview{{FileName: "one.txt", Content: "a single customer interview"}}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitForTerminal(t, repo, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	intel := decodeResult(t, final).StakeholderIntelligence
	if intel == nil || len(intel.Stakeholders) != 1 {
		t.Fatalf("expected single-stakeholder roster, got %+v", intel)
	}
	if intel.ProcessingMetadata.IsMultiStakeholder {
		t.Fatalf("expected is_multi_stakeholder=false")
	}
	if len(intel.ConsensusAreas) != 0 || intel.PriorityMatrix != nil || intel.Summary != nil {
		t.Fatalf("expected no synthesis output for single stakeholder: %+v", intel)
	}
}

func TestOrchestratorUnavailableCapabilityDegrades(t *testing.T) {
	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, completion.Unavailable{})

	content := "Interview #1\nName: Alice Green\nRole: Director of budget approval\nWe need sign-off from finance.\n\n" +
		"Interview #2\nName: Bob Stone\nI use the tool every day.\n"
	job, err := o.Start(context.Background(), []Interview{{FileName: "interviews.txt", Content: content}}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := waitForTerminal(t, repo, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed despite unavailable capability, got %s (%v)", final.Status, final.ErrorMessage)
	}
	// Extraction stages fail recoverably; detection and synthesis degrade.
	if final.Stages[StageThemeExtraction].Status != StageFailed {
		t.Fatalf("expected theme stage failed, got %+v", final.Stages[StageThemeExtraction])
	}
	if final.Stages[StageStakeholders].Status != StageCompleted {
		t.Fatalf("expected stakeholder stage completed, got %+v", final.Stages[StageStakeholders])
	}

	result := decodeResult(t, final)
	if len(result.Themes) != 0 {
		t.Fatalf("expected empty themes, got %d", len(result.Themes))
	}
	intel := result.StakeholderIntelligence
	if intel == nil {
		t.Fatalf("expected stakeholder intelligence")
	}
	if intel.ProcessingMetadata.DetectionMethod != "pattern_matching" {
		t.Fatalf("expected heuristic detection, got %s", intel.ProcessingMetadata.DetectionMethod)
	}
	if len(intel.Stakeholders) != 2 {
		t.Fatalf("expected 2 heuristic stakeholders, got %d", len(intel.Stakeholders))
	}
	if !intel.ProcessingMetadata.SynthesisFallback {
		t.Fatalf("expected synthesis fallback")
	}
	if !intel.ProcessingMetadata.SummaryFallback {
		t.Fatalf("expected summary fallback")
	}
	if len(intel.ConsensusAreas) == 0 {
		t.Fatalf("expected fallback consensus areas")
	}
}

func TestOrchestratorDetectionFailureKeepsIntelligenceNonNil(t *testing.T) {
	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, completion.Unavailable{})

	job, err := o.Start(context.Background(), []Interview{{FileName: "blob.txt", Content: "plain prose without any structural markers at all"}}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := waitForTerminal(t, repo, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", final.Status, final.ErrorMessage)
	}
	if final.Stages[StageStakeholders].Status != StageFailed {
		t.Fatalf("expected stakeholder stage failed, got %+v", final.Stages[StageStakeholders])
	}

	intel := decodeResult(t, final).StakeholderIntelligence
	if intel == nil {
		t.Fatalf("stakeholder_intelligence must never be nil")
	}
	if len(intel.Stakeholders) != 0 {
		t.Fatalf("expected empty roster, got %d", len(intel.Stakeholders))
	}
	if intel.ProcessingMetadata.Error == "" {
		t.Fatalf("expected error recorded in metadata")
	}
}

func TestOrchestratorCancel(t *testing.T) {
	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, mock.Blocking())

	job, err := o.Start(context.Background(), []Interview{{FileName: "x.txt", Content: "some content"}}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait until the run blocks inside a completion call.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, err := repo.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("load job: %v", err)
		}
		if current.Status == StatusProcessing && current.CurrentStage == StageThemeExtraction {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !o.Cancel(job.ID) {
		t.Fatalf("expected Cancel to find the running job")
	}

	final := waitForTerminal(t, repo, job.ID)
	if final.Status != StatusFailed {
		t.Fatalf("expected failed after cancel, got %s", final.Status)
	}
	if final.ErrorCode == nil || *final.ErrorCode != ErrorCodeCancelled {
		t.Fatalf("expected CANCELLED code, got %v", final.ErrorCode)
	}
	if o.Cancel(job.ID) {
		t.Fatalf("expected Cancel to report false once the job is gone")
	}
}

func TestOrchestratorRejectsEmptyInput(t *testing.T) {
	o := NewOrchestrator(NewMemoryRepo(), nil, completion.Unavailable{})

	if _, err := o.Start(context.Background(), nil, Config{}); err == nil {
		t.Fatalf("expected error for no interviews")
	}
	_, err := o.Start(context.Background(), []Interview{{FileName: "a.txt", Content: "   "}}, Config{})
	if err == nil || !strings.Contains(err.Error(), "content") {
		t.Fatalf("expected content error, got %v", err)
	}
}

func TestOrchestratorProgressNeverDecreases(t *testing.T) {
	repo := NewMemoryRepo()
	o := NewOrchestrator(repo, nil, mock.ByTask(happyPathResponses, `{}`))

	job, err := o.Start(context.Background(), []Interview{
		{FileName: "interviews.txt", Content: "Interview #1\nName: Alice\n\nInterview #2\nName: Bob\n"},
	}, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	last := 0.0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := repo.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("load job: %v", err)
		}
		if current.Progress < last {
			t.Fatalf("progress went backward: %f -> %f", last, current.Progress)
		}
		last = current.Progress
		if current.Status == StatusCompleted || current.Status == StatusFailed {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job never finished")
}
