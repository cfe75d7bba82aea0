package service

import (
	"context"
	"errors"
	"testing"

	"ai-kms-go/internal/config"
	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexerFixture struct {
	docs     repository.DocumentRepository
	chunks   repository.DocumentChunkRepository
	embedder *fakeEmbedder
	mirror   *recordingMirror
	indexer  IndexerService
}

func newIndexerFixture(t *testing.T, maxTokens int) *indexerFixture {
	t.Helper()
	db := newTestDB(t)
	cfg := config.DefaultRetrievalConfig()
	cfg.MaxTokensPerChunk = maxTokens
	f := &indexerFixture{
		docs:     repository.NewDocumentRepository(db),
		chunks:   repository.NewDocumentChunkRepository(db),
		embedder: newFakeEmbedder(0.1, 0.2, 0.3),
		mirror:   &recordingMirror{},
	}
	f.indexer = NewIndexerService(f.docs, f.chunks, f.embedder, cfg, nil, f.mirror)
	return f
}

func TestIndexDocumentEndToEnd(t *testing.T) {
	ctx := context.Background()
	// 默认 8000 token 上限下贪心打包会把两句放进同一个分块；这里用 3 token（12 字符）让两句各成一块
	f := newIndexerFixture(t, 3)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "Cats", Content: "The cat sat. The cat slept."})

	require.NoError(t, f.indexer.IndexDocument(ctx, doc.ID))

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInVectorDB)
	vec, err := vector.Parse(got.Embedding)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.NotNil(t, got.EmbeddingModel)
	assert.Equal(t, "fake-model", *got.EmbeddingModel)
	assert.NotNil(t, got.LastEmbeddingUpdate)

	embedCalls, batchCalls := f.embedder.calls()
	assert.Equal(t, []string{"Cats\n\nThe cat sat. The cat slept."}, embedCalls)
	assert.Equal(t, 1, batchCalls)

	chunks, err := f.chunks.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "The cat sat.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 12, chunks[0].EndOffset)
	assert.Equal(t, 3, chunks[0].TokenCount)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, "The cat slept.", chunks[1].Content)
	assert.Equal(t, 13, chunks[1].StartOffset)
	assert.Equal(t, 27, chunks[1].EndOffset)
	assert.Equal(t, 4, chunks[1].TokenCount)
	for _, c := range chunks {
		v, err := vector.Parse(c.Embedding)
		require.NoError(t, err)
		assert.Len(t, v, 3)
	}

	mirrored := f.mirror.chunks[doc.ID]
	require.Len(t, mirrored, 2)
	assert.Equal(t, "1_1", mirrored[1].ChunkID)
	assert.Equal(t, uint(1), mirrored[1].UserID)
}

func TestIndexDocumentIncludesSummary(t *testing.T) {
	f := newIndexerFixture(t, 0)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "Title", Summary: strPtr("Short summary"), Content: "Body."})

	require.NoError(t, f.indexer.IndexDocument(context.Background(), doc.ID))
	embedCalls, _ := f.embedder.calls()
	assert.Equal(t, []string{"Title\n\nShort summary\n\nBody."}, embedCalls)
}

func TestIndexDocumentEmptyTextSkipsProvider(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, 0)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "", Content: "  \n ", IsInVectorDB: true})

	require.NoError(t, f.indexer.IndexDocument(ctx, doc.ID))

	embedCalls, batchCalls := f.embedder.calls()
	assert.Empty(t, embedCalls)
	assert.Zero(t, batchCalls)
	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsInVectorDB)
}

func TestIndexDocumentNotFoundIsNoop(t *testing.T) {
	f := newIndexerFixture(t, 0)
	require.NoError(t, f.indexer.IndexDocument(context.Background(), 404))
	embedCalls, _ := f.embedder.calls()
	assert.Empty(t, embedCalls)
}

func TestIndexDocumentProviderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, 0)
	f.embedder.failOn = []string{"Broken"}
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "Broken", Content: "text", IsInVectorDB: true})

	err := f.indexer.IndexDocument(ctx, doc.ID)
	var perr *embedding.ProviderError
	require.ErrorAs(t, err, &perr)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsInVectorDB)
	_, batchCalls := f.embedder.calls()
	assert.Zero(t, batchCalls)
}

func TestIndexDocumentEmptyVectorMarksNotIndexed(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, 0)
	f.embedder.vectors["Empty"] = []float32{}
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "Empty", IsInVectorDB: true})

	require.NoError(t, f.indexer.IndexDocument(ctx, doc.ID))
	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsInVectorDB)
}

func TestIndexDocumentChunkFailureKeepsPriorChunks(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, 3)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "Cats", Content: "The cat sat. The cat slept."})
	require.NoError(t, f.indexer.IndexDocument(ctx, doc.ID))

	f.embedder.batchErr = &embedding.ProviderError{Op: "call api", Err: errors.New("rate limited")}
	require.NoError(t, f.indexer.IndexDocument(ctx, doc.ID), "chunk failures are not surfaced")

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInVectorDB)

	chunks, err := f.chunks.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "The cat sat.", chunks[0].Content)
}

func TestIndexDocumentMirrorFailureIgnored(t *testing.T) {
	f := newIndexerFixture(t, 0)
	f.mirror.err = errors.New("es down")
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "n", Content: "Some content."})

	assert.NoError(t, f.indexer.IndexDocument(context.Background(), doc.ID))
}

func TestIndexDocumentBusyLock(t *testing.T) {
	f := newIndexerFixture(t, 0)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "n", Content: "c"})
	locked := NewIndexerService(f.docs, f.chunks, f.embedder, config.DefaultRetrievalConfig(), &fakeLocker{busy: true}, nil)

	err := locked.IndexDocument(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrDocumentBusy)
	embedCalls, _ := f.embedder.calls()
	assert.Empty(t, embedCalls)
}

func TestIndexDocumentReleasesLock(t *testing.T) {
	f := newIndexerFixture(t, 0)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "n", Content: "c"})
	locker := &fakeLocker{}
	locked := NewIndexerService(f.docs, f.chunks, f.embedder, config.DefaultRetrievalConfig(), locker, nil)

	require.NoError(t, locked.IndexDocument(context.Background(), doc.ID))
	assert.Equal(t, 1, locker.released)
}

func TestIndexDocumentLockErrorFallsBackToUnlocked(t *testing.T) {
	f := newIndexerFixture(t, 0)
	doc := seedDocument(t, f.docs, model.Document{UserID: 1, Name: "n", Content: "c"})
	locked := NewIndexerService(f.docs, f.chunks, f.embedder, config.DefaultRetrievalConfig(), &fakeLocker{err: errors.New("redis down")}, nil)

	require.NoError(t, locked.IndexDocument(context.Background(), doc.ID))
	got, err := f.docs.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInVectorDB)
}

func TestDocumentText(t *testing.T) {
	assert.Equal(t, "", documentText(&model.Document{Summary: strPtr("  ")}))
	assert.Equal(t, "a\n\nc", documentText(&model.Document{Name: "a", Content: "c"}))
}
