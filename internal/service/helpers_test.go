package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/database"
	"ai-kms-go/pkg/embedding"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func seedDocument(t *testing.T, repo repository.DocumentRepository, doc model.Document) *model.Document {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &doc))
	return &doc
}

func strPtr(s string) *string { return &s }

// fakeEmbedder 根据文本返回预设向量；文本包含 failOn 中任一子串时返回 ProviderError。
type fakeEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	fallback   []float32
	failOn     []string
	batchErr   error
	embedCalls []string
	batchCalls int
}

func newFakeEmbedder(fallback ...float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{}, fallback: fallback}
}

func (f *fakeEmbedder) lookup(text string) ([]float32, error) {
	for _, s := range f.failOn {
		if strings.Contains(text, s) {
			return nil, &embedding.ProviderError{Op: "call api", Err: errors.New("provider unavailable")}
		}
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.fallback, nil
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls = append(f.embedCalls, text)
	return f.lookup(text)
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.lookup(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

func (f *fakeEmbedder) calls() (embed []string, batch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.embedCalls...), f.batchCalls
}

// fakeLocker 按预设结果应答 TryLock。
type fakeLocker struct {
	busy     bool
	err      error
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.busy {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type recordingMirror struct {
	mu     sync.Mutex
	chunks map[uint][]model.ChunkMirrorDocument
	err    error
}

func (m *recordingMirror) ReplaceChunks(_ context.Context, documentID uint, chunks []model.ChunkMirrorDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks == nil {
		m.chunks = map[uint][]model.ChunkMirrorDocument{}
	}
	m.chunks[documentID] = chunks
	return m.err
}
