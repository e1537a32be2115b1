package pipeline

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the orchestrator.
type Handler struct {
	Orchestrator *Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{Orchestrator: orchestrator}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.POST("/analyses/:id/cancel", h.cancelAnalysis)
}

type interviewRequest struct {
	FileName  string `json:"fileName"`
	Content   string `json:"content"`
	InputType string `json:"inputType"`
	FreeText  bool   `json:"freeText"`
}

type startRequest struct {
	Interviews []interviewRequest `json:"interviews"`
	Text       string             `json:"text"`
	Config     Config             `json:"config"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	interviews := make([]Interview, 0, len(req.Interviews)+1)
	for _, iv := range req.Interviews {
		if strings.TrimSpace(iv.Content) == "" {
			continue
		}
		interviews = append(interviews, Interview{
			FileName:  iv.FileName,
			Content:   iv.Content,
			InputType: iv.InputType,
			FreeText:  iv.FreeText,
		})
	}
	if strings.TrimSpace(req.Text) != "" {
		interviews = append(interviews, Interview{
			FileName: "pasted_text",
			Content:  req.Text,
			FreeText: true,
		})
	}
	if len(interviews) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one interview with content is required", []map[string]string{
			{"field": "interviews", "issue": "empty"},
		})
		return
	}

	job, err := h.Orchestrator.Start(c.Request.Context(), interviews, req.Config)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		return
	}

	respond.Accepted(c, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	job, err := h.Orchestrator.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	respond.OK(c, jobResponse(job))
}

func (h *Handler) listAnalyses(c *gin.Context) {
	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.Orchestrator.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		item := gin.H{
			"jobId":     job.ID,
			"status":    job.Status,
			"progress":  job.Progress,
			"createdAt": job.CreatedAt,
		}
		if job.CurrentStage != "" {
			item["currentStage"] = job.CurrentStage
		}
		if job.Status == StatusFailed && job.ErrorCode != nil {
			item["errorCode"] = *job.ErrorCode
		}
		resp = append(resp, item)
	}

	respond.OK(c, resp)
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	if !h.Orchestrator.Cancel(jobID) {
		// Either unknown or already terminal; report which.
		if _, err := h.Orchestrator.Get(c.Request.Context(), jobID); errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return
		}
		respond.Error(c, http.StatusConflict, "not_cancellable", "analysis is not running", nil)
		return
	}

	respond.Accepted(c, gin.H{
		"jobId":  jobID,
		"status": "cancelling",
	})
}

func jobResponse(job Job) gin.H {
	resp := gin.H{
		"jobId":     job.ID,
		"status":    job.Status,
		"progress":  job.Progress,
		"stages":    job.Stages,
		"createdAt": job.CreatedAt,
	}
	if job.CurrentStage != "" {
		resp["currentStage"] = job.CurrentStage
	}
	if job.StartedAt != nil {
		resp["startedAt"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completedAt"] = job.CompletedAt
	}
	if job.Status == StatusCompleted && job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Status == StatusFailed {
		if job.ErrorCode != nil {
			resp["errorCode"] = *job.ErrorCode
		}
		if job.ErrorMessage != nil {
			resp["errorMessage"] = *job.ErrorMessage
		}
		if job.ErrorRetryable != nil {
			resp["errorRetryable"] = *job.ErrorRetryable
		}
	}
	return resp
}
