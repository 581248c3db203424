package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document processing lifecycle. Only the ingestion pipeline moves a document
// out of StatusProcessing; reprocessing is rejected while it holds the status.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusProcessed  = "processed"
	DocumentStatusError      = "error"
)

type Document struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Case   *Case     `gorm:"constraint:OnDelete:CASCADE;foreignKey:CaseID;references:ID" json:"case,omitempty"`

	Filename         string `gorm:"column:filename;not null" json:"filename"`
	OriginalFilename string `gorm:"column:original_filename;not null" json:"original_filename"`
	FilePath         string `gorm:"column:file_path;not null" json:"file_path"`
	FileType         string `gorm:"column:file_type;index" json:"file_type"`
	FileSize         int64  `gorm:"column:file_size" json:"file_size"`
	ThumbnailPath    string `gorm:"column:thumbnail_path" json:"thumbnail_path,omitempty"`

	Status       string `gorm:"column:status;not null;default:pending;index" json:"status"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	PageCount     int    `gorm:"column:page_count" json:"page_count"`
	WordCount     int    `gorm:"column:word_count" json:"word_count"`
	RequiresOCR   bool   `gorm:"column:requires_ocr" json:"requires_ocr"`
	OCRCompleted  bool   `gorm:"column:ocr_completed" json:"ocr_completed"`
	ExtractedText string `gorm:"column:extracted_text;type:text" json:"-"`

	BatesNumber  string `gorm:"column:bates_number;index" json:"bates_number,omitempty"`
	Custodian    string `gorm:"column:custodian" json:"custodian,omitempty"`
	IsPrivileged bool   `gorm:"column:is_privileged;not null;default:false" json:"is_privileged"`

	UploadedAt  time.Time  `gorm:"column:uploaded_at;not null;default:now()" json:"uploaded_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
