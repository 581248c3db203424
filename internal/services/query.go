package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/rag"
)

type AskInput struct {
	CaseID       uuid.UUID
	Question     string
	TopK         int
	MaxCitations int
	UserID       string
}

type AskOutput struct {
	QueryID uuid.UUID   `json:"query_id"`
	Result  *rag.Result `json:"result"`
}

type QueryService interface {
	Ask(ctx context.Context, in AskInput) (*AskOutput, error)
	History(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.Query, error)
}

type queryService struct {
	db      *gorm.DB
	log     *logger.Logger
	engine  *rag.Engine
	queries legal.QueryRepo
	cases   legal.CaseRepo
}

func NewQueryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	engine *rag.Engine,
	queries legal.QueryRepo,
	cases legal.CaseRepo,
) QueryService {
	return &queryService{
		db:      db,
		log:     baseLog.With("service", "QueryService"),
		engine:  engine,
		queries: queries,
		cases:   cases,
	}
}

// Ask answers the question through the engine and records the exchange.
// A refusal is a successful, recorded answer; only engine failures
// return an error.
func (s *queryService) Ask(ctx context.Context, in AskInput) (*AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if _, err := s.cases.GetByID(ctx, nil, in.CaseID); err != nil {
		return nil, fmt.Errorf("case lookup: %w", err)
	}

	result, err := s.engine.Answer(ctx, question, in.CaseID, in.TopK, in.MaxCitations)
	if err != nil {
		return nil, err
	}

	row := &types.Query{
		ID:       uuid.New(),
		CaseID:   in.CaseID,
		UserID:   in.UserID,
		Question: question,
		Answer:   result.Answer,
	}
	if raw, err := json.Marshal(result.Citations); err == nil {
		row.Citations = datatypes.JSON(raw)
	}
	if result.Confidence != nil {
		if raw, err := json.Marshal(result.Confidence); err == nil {
			row.Confidence = datatypes.JSON(raw)
		}
	}
	if _, err := s.queries.Create(ctx, nil, row); err != nil {
		// The answer is already computed; losing history should not
		// fail the request.
		s.log.Error("query history write failed", "case_id", in.CaseID, "error", err)
	}

	return &AskOutput{QueryID: row.ID, Result: result}, nil
}

func (s *queryService) History(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.Query, error) {
	return s.queries.ListByCaseID(ctx, tx, caseID, limit)
}
