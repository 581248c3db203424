package app

import (
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type Repos struct {
	Case          legal.CaseRepo
	Document      legal.DocumentRepo
	DocumentChunk legal.DocumentChunkRepo
	Query         legal.QueryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Case:          legal.NewCaseRepo(db, log),
		Document:      legal.NewDocumentRepo(db, log),
		DocumentChunk: legal.NewDocumentChunkRepo(db, log),
		Query:         legal.NewQueryRepo(db, log),
	}
}
