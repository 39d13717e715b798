// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craftbooks/invoice-ingest/internal/async"
	"github.com/craftbooks/invoice-ingest/internal/export"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
	"github.com/craftbooks/invoice-ingest/internal/repository"
)

type Config struct {
	// MaxUploadBytes caps the multipart file size. Zero means 20 MiB.
	MaxUploadBytes int64
}

type Server struct {
	cfg      Config
	orch     *pipeline.Orchestrator
	queue    *async.Queue
	results  repository.OCRResultRepository
	exporter *export.Service
	logger   *slog.Logger
}

func New(
	cfg Config,
	orch *pipeline.Orchestrator,
	queue *async.Queue,
	results repository.OCRResultRepository,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		orch:     orch,
		queue:    queue,
		results:  results,
		exporter: exporter,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = s.cfg.MaxUploadBytes

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.POST("/invoices/ocr", s.handleUpload)
	api.GET("/jobs/:id", s.handleJobStatus)
	api.GET("/ocr-results/:id", s.handleGetResult)
	api.POST("/ocr-results/:id/revalidate", s.handleRevalidate)
	api.GET("/export/invoices.xlsx", s.handleExport)
	return router
}
