// Package ingestworker runs the standalone embedding worker. It leases
// jobs from the durable ingestion queue, embeds message content and
// upserts documents into the vector index.
package ingestworker

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomchat/loom/server/internal/config"
	"github.com/loomchat/loom/server/internal/factory"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/logger"
)

// Run starts the ingest worker and blocks until shutdown or error.
func Run() error {
	log := logger.New("ingest-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	// A standalone worker must share the queue with the chat service.
	if cfg.QueueDriver != "store" {
		return fmt.Errorf("ingest worker requires QUEUE_DRIVER=store, got %q", cfg.QueueDriver)
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Str("search_index_url", cfg.SearchIndexURL).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Int("batch_size", cfg.IngestBatchSize).
		Msg("Ingest worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Store adapter unavailable")
		return err
	}
	queue := ingest.NewStoreQueue(st.Jobs(), cfg.IngestMaxRetries, cfg.Visibility())

	emb := factory.NewEmbedder(cfg, log)
	if emb != nil {
		if vec, err := emb.Embed(ctx, "worker-startup-check"); err != nil || len(vec) == 0 {
			return fmt.Errorf("embedder not ready: provider=%s model=%s err=%v len=%d",
				cfg.EmbedProvider, cfg.EmbedModel, err, len(vec))
		}
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Search index adapter unavailable")
		return err
	}

	w := ingest.NewWorker(queue, emb, idx, ingest.WorkerConfig{
		BatchSize:     cfg.IngestBatchSize,
		PollInterval:  cfg.PollInterval(),
		RetryDelay:    cfg.RetryDelay(),
		UpsertTimeout: time.Duration(cfg.IngestUpsertTimeoutMS) * time.Millisecond,
	}, log)

	w.Start()
	<-ctx.Done()
	log.Info().Msg("Shutting down ingest worker")
	w.Stop()
	return nil
}
