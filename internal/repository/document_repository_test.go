package repository

import (
	"context"
	"testing"
	"time"

	"ai-kms-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func seedDocument(t *testing.T, repo DocumentRepository, doc model.Document) *model.Document {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &doc))
	return &doc
}

func TestDocumentRepositoryFindByIDNotFound(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	_, err := repo.FindByID(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDocumentRepositorySaveEmbeddingAndMarkNotIndexed(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	doc := seedDocument(t, repo, model.Document{UserID: 1, Name: "a", Content: "body", Tags: []string{"x"}})

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveEmbedding(ctx, doc.ID, []byte(`[0.1,0.2]`), "m-1", at))

	got, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInVectorDB)
	assert.JSONEq(t, `[0.1,0.2]`, string(got.Embedding))
	require.NotNil(t, got.EmbeddingModel)
	assert.Equal(t, "m-1", *got.EmbeddingModel)
	require.NotNil(t, got.LastEmbeddingUpdate)
	assert.True(t, at.Equal(*got.LastEmbeddingUpdate))
	assert.Equal(t, []string{"x"}, []string(got.Tags))

	require.NoError(t, repo.MarkNotIndexed(ctx, doc.ID))
	got, err = repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsInVectorDB)
}

func TestDocumentRepositoryListIDsByUser(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	a := seedDocument(t, repo, model.Document{UserID: 1, Name: "a"})
	seedDocument(t, repo, model.Document{UserID: 2, Name: "b"})
	c := seedDocument(t, repo, model.Document{UserID: 1, Name: "c"})

	ids, err := repo.ListIDsByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, c.ID}, ids)
}

func TestDocumentRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }

	old := seedDocument(t, repo, model.Document{UserID: 1, Name: "old", Category: strPtr("finance"), CreatedAt: day(1)})
	mid := seedDocument(t, repo, model.Document{UserID: 1, Name: "mid", AICategory: strPtr("finance"), CreatedAt: day(10)})
	seedDocument(t, repo, model.Document{UserID: 1, Name: "other", Category: strPtr("legal"), CreatedAt: day(15)})
	newest := seedDocument(t, repo, model.Document{UserID: 1, Name: "new", Category: strPtr("finance"), CreatedAt: day(20)})
	seedDocument(t, repo, model.Document{UserID: 2, Name: "foreign", Category: strPtr("finance"), CreatedAt: day(10)})

	docs, err := repo.FindByUser(ctx, 1, model.DocumentFilter{Category: "finance"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []uint{newest.ID, mid.ID, old.ID}, []uint{docs[0].ID, docs[1].ID, docs[2].ID})

	docs, err = repo.FindByUser(ctx, 1, model.DocumentFilter{DateFrom: day(10), DateTo: day(20)})
	require.NoError(t, err)
	assert.Len(t, docs, 3, "both bounds are inclusive")

	docs, err = repo.FindByUser(ctx, 1, model.DocumentFilter{Category: "finance", DateTo: day(10)})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, mid.ID, docs[0].ID)
}

func TestDocumentRepositoryFindEmbeddedByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	embedded := seedDocument(t, repo, model.Document{UserID: 1, Name: "e"})
	seedDocument(t, repo, model.Document{UserID: 1, Name: "plain"})
	require.NoError(t, repo.SaveEmbedding(ctx, embedded.ID, []byte(`[1,0]`), "m", time.Now()))

	docs, err := repo.FindEmbeddedByUser(ctx, 1, model.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, embedded.ID, docs[0].ID)
}
