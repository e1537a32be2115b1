package uploads

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/extract"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/shared/util"
)

const maxUploadBytes = 5 << 20

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/zip":           {},
	"application/octet-stream":  {},
	"text/plain":                {},
	"text/markdown":             {},
	"text/csv":                  {},
}

// RegisterRoutes attaches transcript upload routes to the router group.
func RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transcripts/extract", extractTranscripts)
}

// extractTranscripts accepts multipart transcript files and returns the
// extracted text as interview payloads ready for POST /analyses.
func extractTranscripts(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form is required", nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one file is required", []map[string]string{
			{"field": "files", "issue": "empty"},
		})
		return
	}

	type interviewPayload struct {
		FileName  string `json:"fileName"`
		Content   string `json:"content"`
		InputType string `json:"inputType"`
	}

	interviews := make([]interviewPayload, 0, len(files))
	for _, file := range files {
		name, err := util.SanitizeFileName(file.Filename)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
			return
		}
		if file.Size <= 0 || file.Size > maxUploadBytes {
			respond.Error(c, http.StatusBadRequest, "validation_error", "file size exceeds limit", []map[string]string{
				{"field": "files", "issue": "size_limit"},
			})
			return
		}
		contentType := strings.ToLower(strings.TrimSpace(strings.Split(file.Header.Get("Content-Type"), ";")[0]))
		if contentType != "" {
			if _, ok := allowedContentTypes[contentType]; !ok {
				respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
				return
			}
		}

		src, err := file.Open()
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
			return
		}
		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
		src.Close()
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
			return
		}

		text, err := extract.FromBytes(c.Request.Context(), data, contentType, name)
		if err != nil {
			telemetry.Error("transcripts.extract_failed", map[string]any{
				"file":       name,
				"mime":       contentType,
				"error":      err.Error(),
				"request_id": c.GetString("requestId"),
			})
			respond.Error(c, http.StatusUnprocessableEntity, "extraction_failed", "could not extract text from "+name, nil)
			return
		}
		if strings.TrimSpace(text) == "" {
			respond.Error(c, http.StatusUnprocessableEntity, "extraction_failed", "no text found in "+name, nil)
			return
		}

		interviews = append(interviews, interviewPayload{
			FileName:  name,
			Content:   text,
			InputType: strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		})
	}

	respond.OK(c, gin.H{"interviews": interviews})
}
