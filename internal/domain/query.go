package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Query rows are immutable once created.
type Query struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Case   *Case     `gorm:"constraint:OnDelete:CASCADE;foreignKey:CaseID;references:ID" json:"case,omitempty"`

	UserID   string `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Question string `gorm:"column:question;type:text;not null" json:"question"`
	Answer   string `gorm:"column:answer;type:text" json:"answer"`

	Citations  datatypes.JSON `gorm:"type:jsonb;column:citations" json:"citations,omitempty"`
	Confidence datatypes.JSON `gorm:"type:jsonb;column:confidence" json:"confidence,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Query) TableName() string { return "query" }
