package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/veridocai/veridoc-backend/internal/http/handlers"
	httpMW "github.com/veridocai/veridoc-backend/internal/http/middleware"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	CaseHandler     *httpH.CaseHandler
	DocumentHandler *httpH.DocumentHandler
	QueryHandler    *httpH.QueryHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachRequestID())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Cases
		if cfg.CaseHandler != nil {
			api.POST("/cases", cfg.CaseHandler.CreateCase)
			api.GET("/cases", cfg.CaseHandler.ListCases)
			api.GET("/cases/:id", cfg.CaseHandler.GetCase)
			api.DELETE("/cases/:id", cfg.CaseHandler.DeleteCase)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/cases/:id/documents", cfg.DocumentHandler.UploadDocument)
			api.GET("/cases/:id/documents", cfg.DocumentHandler.ListCaseDocuments)
			api.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
			api.DELETE("/documents/:id", cfg.DocumentHandler.DeleteDocument)
			api.GET("/documents/:id/chunks", cfg.DocumentHandler.ListDocumentChunks)
			api.POST("/documents/:id/reprocess", cfg.DocumentHandler.ReprocessDocument)
		}

		// Queries
		if cfg.QueryHandler != nil {
			api.POST("/cases/:id/query", cfg.QueryHandler.AskQuestion)
			api.GET("/cases/:id/queries", cfg.QueryHandler.ListCaseQueries)
		}
	}

	return r
}
