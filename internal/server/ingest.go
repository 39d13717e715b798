package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
)

// handleUpload accepts a multipart invoice document and runs the pipeline.
// With async=true the submission is queued and a job ID returned instead.
func (s *Server) handleUpload(c *gin.Context) {
	companyID, err := uuid.Parse(strings.TrimSpace(c.PostForm("company_id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id must be a UUID"})
		return
	}
	autoApprove := c.PostForm("auto_approve") == "true"
	runAsync := c.PostForm("async") == "true"

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload limit"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload limit"})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	sub := pipeline.Submission{
		CompanyID:   companyID,
		Filename:    fileHeader.Filename,
		MimeType:    mimeType,
		Data:        data,
		AutoApprove: autoApprove,
	}

	if runAsync {
		jobID, err := s.queue.Enqueue(c.Request.Context(), sub)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
		return
	}

	res := s.orch.Run(c.Request.Context(), sub, nil)
	c.JSON(statusForResult(res), res)
}

func (s *Server) handleJobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}
	st := s.queue.Status(jobID)
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// statusForResult maps the pipeline's terminal code onto an HTTP status.
func statusForResult(res *entity.PipelineImportResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Code {
	case constants.CodeCompanyNotFound:
		return http.StatusNotFound
	case constants.CodeDuplicateFile, constants.CodeDuplicateInvoice:
		return http.StatusConflict
	case constants.CodeValidationError:
		return http.StatusUnprocessableEntity
	case constants.CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
