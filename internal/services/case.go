package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type CaseService interface {
	Create(ctx context.Context, tx *gorm.DB, name, caseNumber, description string) (*types.Case, error)
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Case, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Case, error)
	Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (*types.Case, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type caseService struct {
	db    *gorm.DB
	log   *logger.Logger
	cases legal.CaseRepo
}

func NewCaseService(db *gorm.DB, baseLog *logger.Logger, cases legal.CaseRepo) CaseService {
	return &caseService{
		db:    db,
		log:   baseLog.With("service", "CaseService"),
		cases: cases,
	}
}

func (s *caseService) Create(ctx context.Context, tx *gorm.DB, name, caseNumber, description string) (*types.Case, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("case name is required")
	}
	c := &types.Case{
		ID:          uuid.New(),
		Name:        name,
		CaseNumber:  strings.TrimSpace(caseNumber),
		Description: strings.TrimSpace(description),
		IsActive:    true,
	}
	created, err := s.cases.Create(ctx, tx, c)
	if err != nil {
		s.log.Error("create case failed", "error", err)
		return nil, fmt.Errorf("create case: %w", err)
	}
	return created, nil
}

func (s *caseService) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Case, error) {
	return s.cases.GetByID(ctx, tx, id)
}

func (s *caseService) List(ctx context.Context, tx *gorm.DB) ([]*types.Case, error) {
	return s.cases.List(ctx, tx)
}

func (s *caseService) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (*types.Case, error) {
	if err := s.cases.UpdateFields(ctx, tx, id, updates); err != nil {
		return nil, fmt.Errorf("update case: %w", err)
	}
	return s.cases.GetByID(ctx, tx, id)
}

func (s *caseService) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return s.cases.Delete(ctx, tx, id)
}
