package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/embeddings"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/searchindex"
)

// WorkerConfig controls batch size and polling cadence.
type WorkerConfig struct {
	BatchSize     int           // jobs pulled per cycle
	PollInterval  time.Duration // sleep when the queue is empty
	RetryDelay    time.Duration // sleep after a transient failure
	UpsertTimeout time.Duration // deadline for the batched index call
}

// Worker drains the ingestion queue and feeds the vector index. One
// batched upsert per cycle; validation failures drop immediately,
// transient failures retry with decreasing priority until the budget
// runs out.
type Worker struct {
	queue Queue
	emb   embeddings.Embedder
	idx   searchindex.Index
	cfg   WorkerConfig
	log   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewWorker constructs a Worker from injected dependencies. The embedder
// may be nil, in which case documents are indexed without vectors.
func NewWorker(q Queue, emb embeddings.Embedder, idx searchindex.Index, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.UpsertTimeout <= 0 {
		cfg.UpsertTimeout = 5 * time.Second
	}
	return &Worker{queue: q, emb: emb, idx: idx, cfg: cfg, log: log}
}

// Start begins the poll loop if it is not already running. Idempotent.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.PollInterval).Msg("ingest worker starting")
	go w.run(w.stopCh, w.done)
}

// Stop flags the loop to exit after the current batch and waits for it.
// Never interrupts an in-flight batch; un-acked jobs stay in the queue.
// Idempotent and safe to call concurrently.
func (w *Worker) Stop() {
	w.mu.Lock()
	stopCh, done := w.stopCh, w.done
	w.stopCh, w.done = nil, nil
	w.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

type outcome int

const (
	outcomeEmpty outcome = iota
	outcomeProcessed
	outcomeTransient
)

func (w *Worker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		var delay time.Duration
		switch w.processOnce(context.Background()) {
		case outcomeEmpty:
			delay = w.cfg.PollInterval
		case outcomeTransient:
			delay = w.cfg.RetryDelay
		case outcomeProcessed:
			// more work may be pending, poll again immediately
		}

		if delay == 0 {
			select {
			case <-stop:
				w.log.Info().Msg("ingest worker stopping")
				return
			default:
			}
			continue
		}
		select {
		case <-stop:
			w.log.Info().Msg("ingest worker stopping")
			return
		case <-time.After(delay):
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) outcome {
	batch, err := w.queue.NextBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("queue read failed")
		return outcomeTransient
	}
	if len(batch) == 0 {
		return outcomeEmpty
	}

	// Validation failures are permanent: drop without consuming budget.
	valid := make([]*model.IngestJob, 0, len(batch))
	for _, job := range batch {
		if strings.TrimSpace(job.Content) == "" {
			w.log.Warn().Int64("jobId", job.JobID).Str("messageId", job.MessageID).
				Msg("PermanentFailure: empty content, dropping job")
			if err := w.queue.Ack(ctx, []int64{job.JobID}); err != nil {
				w.log.Error().Err(err).Int64("jobId", job.JobID).Msg("drop failed")
			}
			jobsDropped.Inc()
			continue
		}
		valid = append(valid, job)
	}
	if len(valid) == 0 {
		return outcomeProcessed
	}

	upsertCtx, cancel := context.WithTimeout(ctx, w.cfg.UpsertTimeout)
	defer cancel()

	docs := make([]searchindex.MessageDoc, 0, len(valid))
	for _, job := range valid {
		vec, err := w.embed(upsertCtx, job.Content)
		if err != nil {
			w.log.Error().Err(err).Int64("jobId", job.JobID).Msg("embed failed")
			w.retryBatch(ctx, valid)
			return outcomeTransient
		}
		docs = append(docs, searchindex.MessageDoc{
			MessageID:    job.MessageID,
			Content:      job.Content,
			Vector:       vec,
			CreationTime: job.EnqueueTime,
		})
	}

	// One upsert for the whole batch to minimize round trips.
	if err := w.idx.UpsertMessages(upsertCtx, docs); err != nil {
		if errors.Is(err, searchindex.ErrInvalidDoc) {
			w.log.Warn().Err(err).Int("jobs", len(valid)).
				Msg("PermanentFailure: index rejected batch, dropping")
			w.ack(ctx, valid)
			jobsDropped.Add(float64(len(valid)))
			return outcomeProcessed
		}
		w.log.Error().Err(err).Int("jobs", len(valid)).Msg("batch upsert failed")
		w.retryBatch(ctx, valid)
		return outcomeTransient
	}

	w.ack(ctx, valid)
	jobsProcessed.Add(float64(len(valid)))
	w.log.Debug().Int("jobs", len(valid)).Msg("batch indexed")
	return outcomeProcessed
}

func (w *Worker) ack(ctx context.Context, jobs []*model.IngestJob) {
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.JobID
	}
	if err := w.queue.Ack(ctx, ids); err != nil {
		w.log.Error().Err(err).Msg("ack failed")
	}
}

func (w *Worker) retryBatch(ctx context.Context, jobs []*model.IngestJob) {
	for _, job := range jobs {
		dropped, err := w.queue.Retry(ctx, job.JobID)
		if err != nil {
			w.log.Error().Err(err).Int64("jobId", job.JobID).Msg("retry failed")
			continue
		}
		if dropped {
			w.log.Error().Int64("jobId", job.JobID).Str("messageId", job.MessageID).
				Int("retries", job.RetryCount+1).
				Msg("PermanentFailure: retry budget exhausted, dropping job")
			jobsDropped.Inc()
			continue
		}
		jobsRetried.Inc()
	}
}

// embed guards nil embedder usage; the index accepts vectorless docs.
func (w *Worker) embed(ctx context.Context, text string) ([]float32, error) {
	if w.emb == nil {
		return nil, nil
	}
	return w.emb.Embed(ctx, text)
}
