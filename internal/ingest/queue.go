package ingest

import (
	"context"

	"github.com/loomchat/loom/server/internal/model"
)

// DefaultMaxRetries is the retry budget applied when a queue is
// constructed with a non-positive value.
const DefaultMaxRetries = 3

// Queue holds pending embedding jobs. Producers call Add concurrently;
// consumers drain with NextBatch and settle every job through Ack
// (success) or Retry (transient failure). A job leaves the queue only by
// Ack or by exhausting its retry budget.
type Queue interface {
	// Add enqueues a job with priority 1 and a zero retry count.
	Add(ctx context.Context, messageID, content string) error
	// NextBatch returns up to n pending jobs ordered by priority desc,
	// stable on enqueue order. Jobs are not removed; durable
	// implementations lease them so concurrent consumers skip the batch.
	NextBatch(ctx context.Context, n int) ([]*model.IngestJob, error)
	// Ack removes the given job ids. The only success exit.
	Ack(ctx context.Context, ids []int64) error
	// Retry increments the retry count and lowers priority, pushing the
	// job behind fresh work. Once the count exceeds the budget the job is
	// dropped and Retry reports dropped=true.
	Retry(ctx context.Context, id int64) (dropped bool, err error)
	// Size returns the current pending count.
	Size(ctx context.Context) (int, error)
}
