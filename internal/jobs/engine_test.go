package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragkit/internal/config"
	"ragkit/internal/objectstore"
	"ragkit/internal/persistence/databases"
	"ragkit/internal/rag/service"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	mgr := databases.Manager{
		Search: databases.NewMemorySearch(),
		Vector: databases.NewMemoryVector(),
		Graph:  databases.NewMemoryGraph(),
	}
	svc := service.New(mgr)
	e := NewEngine(NewMemoryStore(), svc, nil, config.JobsConfig{MaxRetries: 1, RetryBaseMS: 1}, "", nil)
	require.NoError(t, e.Restore(context.Background()))
	return e
}

func TestEnqueue_IdempotencyReturnsSameID(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	id1, dup1, err := e.Enqueue(ctx, KindURL, map[string]any{"url": "http://x/a", "document_id": "d"}, "K")
	require.NoError(t, err)
	require.False(t, dup1)
	id2, dup2, err := e.Enqueue(ctx, KindURL, map[string]any{"url": "http://x/b", "document_id": "d"}, "K")
	require.NoError(t, err)
	require.True(t, dup2)
	require.Equal(t, id1, id2)
}

func TestEngine_FileJobRunsToCompletion(t *testing.T) {
	e := testEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world, this is a test document about golang channels"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, _, err := e.Enqueue(ctx, KindFile, map[string]any{"path": path, "document_id": "doc1"}, "")
	require.NoError(t, err)

	go e.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		j, ok := e.Get(id)
		if ok && (j.Status == StatusDone || j.Status == StatusError) {
			require.Equal(t, StatusDone, j.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
}

func TestEngine_UnknownKindFailsFast(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, _, err := e.Enqueue(ctx, Kind("bogus"), map[string]any{}, "")
	require.NoError(t, err)

	go e.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		j, ok := e.Get(id)
		if ok && j.Status == StatusError {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach error state in time")
}

func TestPDFGlobResume_PersistsProgressAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".pdf"), []byte("not a real pdf"), 0o644))
	}
	store := NewMemoryStore()
	mgr := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector(), Graph: databases.NewMemoryGraph()}
	svc := service.New(mgr)
	e := NewEngine(store, svc, nil, config.JobsConfig{MaxRetries: 0, RetryBaseMS: 1}, "", nil)
	require.NoError(t, e.Restore(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, _, err := e.Enqueue(ctx, KindPDFGlob, map[string]any{"glob": filepath.Join(dir, "*.pdf"), "prefix": "p_"}, "")
	require.NoError(t, err)

	go e.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		j, ok := e.Get(id)
		if ok && j.Status == StatusDone {
			require.NotNil(t, j.Resume)
			require.Equal(t, 3, j.Resume.Next)
			require.Equal(t, 3, j.Progress.Completed)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pdf_glob job did not complete in time")
}

func TestEngine_S3JobReadsFromObjectStore(t *testing.T) {
	objStore := objectstore.NewMemoryStore()
	_, err := objStore.Put(context.Background(), "docs/report.txt", strings.NewReader("quarterly figures and a summary"), objectstore.PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	mgr := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector(), Graph: databases.NewMemoryGraph()}
	svc := service.New(mgr)
	e := NewEngine(NewMemoryStore(), svc, nil, config.JobsConfig{MaxRetries: 0, RetryBaseMS: 1}, "", objStore)
	require.NoError(t, e.Restore(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, _, err := e.Enqueue(ctx, KindS3, map[string]any{"key": "docs/report.txt", "document_id": "doc-s3-1"}, "")
	require.NoError(t, err)

	go e.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		j, ok := e.Get(id)
		if ok && (j.Status == StatusDone || j.Status == StatusError) {
			require.Equal(t, StatusDone, j.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("s3 job did not reach a terminal state in time")
}
