package factory

import (
	"fmt"

	"github.com/loomchat/loom/server/internal/config"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/store"
)

// NewQueue creates the ingestion queue. The store-backed queue is the
// default: jobs survive restarts and can be shared by multiple worker
// instances. The memory queue is for tests and single-process dev runs.
func NewQueue(cfg *config.Config, st store.Store) (ingest.Queue, error) {
	switch cfg.QueueDriver {
	case "store":
		return ingest.NewStoreQueue(st.Jobs(), cfg.IngestMaxRetries, cfg.Visibility()), nil
	case "memory":
		return ingest.NewMemoryQueue(cfg.IngestMaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported QUEUE_DRIVER: %s", cfg.QueueDriver)
	}
}
