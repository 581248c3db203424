package legal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type CaseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, c *types.Case) (*types.Case, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Case, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Case, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type caseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCaseRepo(db *gorm.DB, baseLog *logger.Logger) CaseRepo {
	return &caseRepo{db: db, log: baseLog.With("repo", "CaseRepo")}
}

func (r *caseRepo) Create(ctx context.Context, tx *gorm.DB, c *types.Case) (*types.Case, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Case, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Case
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *caseRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Case, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Case
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *caseRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Case{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *caseRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Case{}).Error
}
