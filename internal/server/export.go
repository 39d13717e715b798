package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleExport streams the invoice workbook for a company and optional
// invoice-date window (from/to as YYYY-MM-DD query params).
func (s *Server) handleExport(c *gin.Context) {
	companyID, err := uuid.Parse(strings.TrimSpace(c.Query("company_id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id must be a UUID"})
		return
	}

	var fromPtr, toPtr *time.Time
	if fd := strings.TrimSpace(c.Query("from")); fd != "" {
		t, err := time.Parse("2006-01-02", fd)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		fromPtr = &t
	}
	if td := strings.TrimSpace(c.Query("to")); td != "" {
		t, err := time.Parse("2006-01-02", td)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		toPtr = &t
	}

	xlsx, err := s.exporter.ExportInvoicesXLSX(c.Request.Context(), companyID, fromPtr, toPtr)
	if err != nil {
		s.logger.Error("server.export.failed", "company_id", companyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsx)
}
