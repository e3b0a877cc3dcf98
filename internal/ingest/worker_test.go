package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/searchindex"
)

type fakeIndex struct {
	mu       sync.Mutex
	attempts int
	failures int
	err      error
	indexed  []searchindex.MessageDoc
}

func (f *fakeIndex) UpsertMessages(_ context.Context, docs []searchindex.MessageDoc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.indexed = append(f.indexed, docs...)
	return nil
}

func (f *fakeIndex) snapshot() (int, []searchindex.MessageDoc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, append([]searchindex.MessageDoc(nil), f.indexed...)
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

func newTestWorker(q Queue, idx searchindex.Index) *Worker {
	cfg := WorkerConfig{BatchSize: 10, PollInterval: time.Millisecond, RetryDelay: time.Millisecond}
	return NewWorker(q, &fakeEmbedder{}, idx, cfg, zerolog.Nop())
}

func TestWorkerIndexesBatchAndAcks(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	require.NoError(t, q.Add(ctx, "m2", "world"))
	idx := &fakeIndex{}
	w := newTestWorker(q, idx)

	assert.Equal(t, outcomeProcessed, w.processOnce(ctx))

	attempts, docs := idx.snapshot()
	assert.Equal(t, 1, attempts, "one upsert per batch")
	require.Len(t, docs, 2)
	assert.Equal(t, "m1", docs[0].MessageID)
	assert.NotEmpty(t, docs[0].Vector)

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, outcomeEmpty, w.processOnce(ctx))
}

func TestWorkerRetriesTransientThenSucceeds(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	idx := &fakeIndex{failures: 2, err: errors.New("index unavailable")}
	w := newTestWorker(q, idx)

	assert.Equal(t, outcomeTransient, w.processOnce(ctx))
	assert.Equal(t, outcomeTransient, w.processOnce(ctx))
	assert.Equal(t, outcomeProcessed, w.processOnce(ctx))

	attempts, docs := idx.snapshot()
	assert.Equal(t, 3, attempts)
	require.Len(t, docs, 1)

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWorkerDropsAfterRetryBudget(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	idx := &fakeIndex{failures: 100, err: errors.New("index unavailable")}
	w := newTestWorker(q, idx)

	for i := 0; i < DefaultMaxRetries; i++ {
		assert.Equal(t, outcomeTransient, w.processOnce(ctx))
	}
	// Budget exhausted on the next failure; job is dropped.
	assert.Equal(t, outcomeTransient, w.processOnce(ctx))

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, docs := idx.snapshot()
	assert.Empty(t, docs)
}

func TestWorkerDropsEmptyContentWithoutBudget(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "   "))
	require.NoError(t, q.Add(ctx, "m2", "real content"))
	idx := &fakeIndex{}
	w := newTestWorker(q, idx)

	assert.Equal(t, outcomeProcessed, w.processOnce(ctx))

	attempts, docs := idx.snapshot()
	assert.Equal(t, 1, attempts)
	require.Len(t, docs, 1)
	assert.Equal(t, "m2", docs[0].MessageID)

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWorkerDropsBatchOnInvalidDoc(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	idx := &fakeIndex{failures: 1, err: fmt.Errorf("bad doc: %w", searchindex.ErrInvalidDoc)}
	w := newTestWorker(q, idx)

	assert.Equal(t, outcomeProcessed, w.processOnce(ctx))

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, docs := idx.snapshot()
	assert.Empty(t, docs)
}

func TestWorkerEmbedFailureIsTransient(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	idx := &fakeIndex{}
	cfg := WorkerConfig{BatchSize: 10, PollInterval: time.Millisecond, RetryDelay: time.Millisecond}
	w := NewWorker(q, &fakeEmbedder{err: errors.New("ollama down")}, idx, cfg, zerolog.Nop())

	assert.Equal(t, outcomeTransient, w.processOnce(ctx))

	batch, err := q.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].RetryCount)
	attempts, _ := idx.snapshot()
	assert.Equal(t, 0, attempts, "no upsert when embedding fails")
}

func TestWorkerStartStopIdempotent(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxRetries)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "m1", "hello"))
	idx := &fakeIndex{}
	w := newTestWorker(q, idx)

	w.Stop() // before start, no-op

	w.Start()
	w.Start() // second start is a no-op

	require.Eventually(t, func() bool {
		n, err := q.Size(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()

	_, docs := idx.snapshot()
	require.Len(t, docs, 1)
}
