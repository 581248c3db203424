package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	ChunkIndex int    `gorm:"column:chunk_index;not null;index" json:"chunk_index"`
	Content    string `gorm:"column:content;type:text;not null" json:"content"`

	// Offsets are half-open over Document.ExtractedText.
	StartChar int `gorm:"column:start_char;not null" json:"start_char"`
	EndChar   int `gorm:"column:end_char;not null" json:"end_char"`

	PageNumber      *int `gorm:"column:page_number;index" json:"page_number,omitempty"`
	ParagraphNumber *int `gorm:"column:paragraph_number" json:"paragraph_number,omitempty"`

	// Key of this chunk's entry in the vector index, set once embedded.
	EmbeddingID string `gorm:"column:embedding_id;index" json:"embedding_id,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
