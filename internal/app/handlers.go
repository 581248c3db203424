package app

import (
	httpH "github.com/veridocai/veridoc-backend/internal/http/handlers"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Case     *httpH.CaseHandler
	Document *httpH.DocumentHandler
	Query    *httpH.QueryHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Case:     httpH.NewCaseHandler(log, services.Case),
		Document: httpH.NewDocumentHandler(log, services.Document),
		Query:    httpH.NewQueryHandler(log, services.Query),
	}
}
