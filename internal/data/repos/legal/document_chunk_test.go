package legal

import (
	"context"
	"testing"

	"github.com/veridocai/veridoc-backend/internal/data/repos/testutil"
	types "github.com/veridocai/veridoc-backend/internal/domain"
)

func TestDocumentChunkRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewDocumentChunkRepo(db, testutil.Logger(t))

	c := testutil.SeedCase(t, ctx, tx, "Chunk Case")
	doc := testutil.SeedDocument(t, ctx, tx, c.ID, types.DocumentStatusProcessed)

	c2 := testutil.SeedDocumentChunk(t, ctx, tx, doc.ID, 1)
	c1 := testutil.SeedDocumentChunk(t, ctx, tx, doc.ID, 0)

	rows, err := repo.GetByDocumentID(ctx, tx, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocumentID: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(rows))
	}
	if rows[0].ID != c1.ID || rows[1].ID != c2.ID {
		t.Fatalf("chunks not ordered by chunk_index")
	}

	byEmb, err := repo.GetByEmbeddingIDs(ctx, tx, []string{c1.EmbeddingID, c2.EmbeddingID})
	if err != nil || len(byEmb) != 2 {
		t.Fatalf("GetByEmbeddingIDs: err=%v len=%d", err, len(byEmb))
	}

	ids, err := repo.ListEmbeddingIDsByDocumentID(ctx, tx, doc.ID)
	if err != nil || len(ids) != 2 {
		t.Fatalf("ListEmbeddingIDsByDocumentID: err=%v len=%d", err, len(ids))
	}

	if err := repo.DeleteByDocumentID(ctx, tx, doc.ID); err != nil {
		t.Fatalf("DeleteByDocumentID: %v", err)
	}
	rows, err = repo.GetByDocumentID(ctx, tx, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocumentID after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected chunks removed, got %d", len(rows))
	}
}
