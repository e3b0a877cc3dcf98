package ingest

import (
	"context"
	"time"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// StoreQueue is the durable Queue backed by the store's ingest_jobs
// table. Jobs survive process restarts, and lease windows let multiple
// worker instances share the queue without double-processing.
type StoreQueue struct {
	jobs       store.Jobs
	maxRetries int
	visibility time.Duration
}

func NewStoreQueue(jobs store.Jobs, maxRetries int, visibility time.Duration) *StoreQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if visibility <= 0 {
		visibility = time.Minute
	}
	return &StoreQueue{jobs: jobs, maxRetries: maxRetries, visibility: visibility}
}

func (q *StoreQueue) Add(ctx context.Context, messageID, content string) error {
	return q.jobs.Enqueue(ctx, messageID, content)
}

func (q *StoreQueue) NextBatch(ctx context.Context, n int) ([]*model.IngestJob, error) {
	return q.jobs.Lease(ctx, n, q.visibility)
}

func (q *StoreQueue) Ack(ctx context.Context, ids []int64) error {
	return q.jobs.Ack(ctx, ids)
}

func (q *StoreQueue) Retry(ctx context.Context, id int64) (bool, error) {
	return q.jobs.Retry(ctx, id, q.maxRetries)
}

func (q *StoreQueue) Size(ctx context.Context) (int, error) {
	return q.jobs.Pending(ctx)
}
