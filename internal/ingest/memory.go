package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loomchat/loom/server/internal/model"
)

// MemoryQueue is the in-process Queue used for tests and single-process
// dev mode. State is lost on restart; production uses StoreQueue. Safe
// for concurrent producers; assumes a single consumer loop.
type MemoryQueue struct {
	mu         sync.Mutex
	nextID     int64
	items      []*model.IngestJob
	maxRetries int
}

func NewMemoryQueue(maxRetries int) *MemoryQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &MemoryQueue{maxRetries: maxRetries}
}

func (q *MemoryQueue) Add(ctx context.Context, messageID, content string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items = append(q.items, &model.IngestJob{
		JobID:       q.nextID,
		MessageID:   messageID,
		Content:     content,
		Priority:    1,
		EnqueueTime: time.Now().UTC(),
	})
	return nil
}

func (q *MemoryQueue) NextBatch(ctx context.Context, n int) ([]*model.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.IngestJob, len(q.items))
	for i, job := range q.items {
		cp := *job
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Priority > out[k].Priority })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		q.remove(id)
	}
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.items {
		if job.JobID != id {
			continue
		}
		job.RetryCount++
		job.Priority--
		if job.RetryCount > q.maxRetries {
			q.remove(id)
			return true, nil
		}
		return false, nil
	}
	return false, model.ErrNotFound
}

func (q *MemoryQueue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// remove assumes the caller holds q.mu.
func (q *MemoryQueue) remove(id int64) {
	for i, job := range q.items {
		if job.JobID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
