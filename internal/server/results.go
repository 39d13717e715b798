package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
)

func (s *Server) handleGetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}
	res, err := s.results.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ocr result not found"})
			return
		}
		s.logger.Error("server.results.get_failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type revalidateRequest struct {
	// StructuredData carries the human-edited fields; nil re-validates the
	// stored data unchanged.
	StructuredData *entity.StructuredInvoiceData `json:"structured_data"`
}

// handleRevalidate runs validation again after a human edit, without
// re-running recognition.
func (s *Server) handleRevalidate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}
	var req revalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vr, err := s.orch.Revalidate(c.Request.Context(), id, req.StructuredData)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ocr result not found"})
			return
		}
		if errors.Is(err, pipeline.ErrResultImmutable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("server.results.revalidate_failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revalidation failed"})
		return
	}
	c.JSON(http.StatusOK, vr)
}
