package pdfrag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/pdfrag/ai/mock"
	"github.com/poiesic/pdfrag/config"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/rag"
	"github.com/poiesic/pdfrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Chunker.Kind = "window"
	cfg.Chunker.Size = 20
	cfg.Chunker.Overlap = 0
	cfg.Orchestrator.BaseBackoff = time.Millisecond
	return cfg
}

func TestNewEngine(t *testing.T) {
	t.Run("opens storage and creates the collection", func(t *testing.T) {
		e, err := NewEngine(testConfig(t), WithAIProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer e.Close()

		assert.NotNil(t, e.Orchestrator())
		assert.NotNil(t, e.VectorStore())
		assert.NotNil(t, e.RunRepository())

		info, err := e.Collection(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "docs", info.Collection.Name)
		assert.Equal(t, 384, info.Collection.Dims)
		assert.Zero(t, info.Points)

		_, ok := e.Orchestrator().Pipeline(rag.IngestPipeline)
		assert.True(t, ok)
		_, ok = e.Orchestrator().Pipeline(rag.QueryPipeline)
		assert.True(t, ok)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TopK = 0
		e, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, e)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DataDir = filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(cfg.DataDir, []byte("test"), 0o644))

		e, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, e)
	})

	t.Run("builds the openai provider from config", func(t *testing.T) {
		e, err := NewEngine(testConfig(t), WithInMemoryStorage())
		require.NoError(t, err)
		assert.NoError(t, e.Close())
	})
}

func TestEngine_IngestQueryAndResume(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 20)+strings.Repeat("y", 20)), 0o644))

	e, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)

	run, err := e.Orchestrator().Submit(ctx, rag.IngestPipeline,
		core.Encode(core.IngestRequestMUS, core.IngestRequest{PDFPath: path}))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	run, err = e.Orchestrator().Wait(waitCtx, run.ID)
	require.NoError(t, err)
	require.Equal(t, core.RunCompleted, run.Status, run.Reason)
	require.NoError(t, e.Close())

	// Runs and points survive a restart.
	e, err = NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer e.Close()

	stored, err := e.RunRepository().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, stored.Status)

	info, err := e.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Points)

	n, err := e.Resume(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_ResetCollection(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	// A collection left behind by a different embedding model.
	cfg.AI.EmbeddingDims = 8
	e, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	cfg.AI.EmbeddingDims = 384
	e, err = NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err, "a dimension mismatch does not prevent startup")
	defer e.Close()

	info, err := e.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, info.Collection.Dims)

	_, err = e.VectorStore().EnsureCollection(ctx, cfg.Collection, 384, core.MetricCosine)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	collection, err := e.ResetCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 384, collection.Dims)
	assert.Equal(t, core.MetricCosine, collection.Metric)

	info, err = e.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 384, info.Collection.Dims)
	assert.Zero(t, info.Points)
}

func TestEngine_NewServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	e, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer e.Close()

	srv, err := e.NewServer()
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
}
