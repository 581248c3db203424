package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/veridocai/veridoc-backend/internal/http"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, handlers Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:             log,
		CaseHandler:     handlers.Case,
		DocumentHandler: handlers.Document,
		QueryHandler:    handlers.Query,
		HealthHandler:   handlers.Health,
	})
}
