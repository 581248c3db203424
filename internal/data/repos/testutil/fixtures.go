package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridocai/veridoc-backend/internal/domain"
)

func SeedCase(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Case {
	tb.Helper()
	c := &types.Case{
		ID:       uuid.New(),
		Name:     name,
		IsActive: true,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed case: %v", err)
	}
	return c
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, caseID uuid.UUID, status string) *types.Document {
	tb.Helper()
	id := uuid.New()
	doc := &types.Document{
		ID:               id,
		CaseID:           caseID,
		Filename:         id.String() + ".pdf",
		OriginalFilename: "contract.pdf",
		FilePath:         "/tmp/uploads/" + id.String() + ".pdf",
		FileType:         "pdf",
		FileSize:         1024,
		Status:           status,
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedDocumentChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, index int) *types.DocumentChunk {
	tb.Helper()
	id := uuid.New()
	page := 1
	c := &types.DocumentChunk{
		ID:          id,
		DocumentID:  documentID,
		ChunkIndex:  index,
		Content:     fmt.Sprintf("chunk-%d content", index),
		StartChar:   index * 100,
		EndChar:     index*100 + 50,
		PageNumber:  &page,
		EmbeddingID: "chunk-" + id.String(),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed document chunk: %v", err)
	}
	return c
}
