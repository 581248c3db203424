package legal

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type QueryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, q *types.Query) (*types.Query, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Query, error)
	ListByCaseID(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.Query, error)
}

type queryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryRepo(db *gorm.DB, baseLog *logger.Logger) QueryRepo {
	return &queryRepo{db: db, log: baseLog.With("repo", "QueryRepo")}
}

func (r *queryRepo) Create(ctx context.Context, tx *gorm.DB, q *types.Query) (*types.Query, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

func (r *queryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Query, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Query
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *queryRepo) ListByCaseID(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.Query, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var results []*types.Query
	if err := transaction.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
