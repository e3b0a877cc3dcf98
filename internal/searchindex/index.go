package searchindex

import (
	"context"
	"errors"
	"time"
)

// MessageDoc is one message prepared for indexing. It carries exactly
// what the ingestion queue row carries; richer metadata lives in the
// durable message store.
type MessageDoc struct {
	MessageID    string
	Content      string
	Vector       []float32
	CreationTime time.Time
}

// ErrInvalidDoc marks a document the index will never accept (for example
// empty content). Callers treat it as a permanent failure and drop the job
// without consuming retry budget.
var ErrInvalidDoc = errors.New("invalid document")

// Index provides vector index maintenance. The pipeline only writes;
// retrieval is owned by the response generator, which is out of scope here.
type Index interface {
	// UpsertMessages indexes the whole batch in a single round trip.
	UpsertMessages(ctx context.Context, docs []MessageDoc) error
}

// HealthPinger is optionally implemented by an Index to expose specialized
// health check logic. Returns nil when healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
