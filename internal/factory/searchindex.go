package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/config"
	"github.com/loomchat/loom/server/internal/embeddings"
	"github.com/loomchat/loom/server/internal/embeddings/ollama"
	"github.com/loomchat/loom/server/internal/searchindex"
)

// NewSearchIndex creates the vector index client and bootstraps its
// schema asynchronously so startup is not blocked by a slow index.
func NewSearchIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (searchindex.Index, error) {
	if cfg.SearchIndexURL == "" {
		return nil, fmt.Errorf("search index URL not configured")
	}
	idx, err := searchindex.NewWeaviateIndex(cfg.SearchIndexURL)
	if err != nil {
		return nil, err
	}

	go func() {
		bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := searchindex.BootstrapWeaviate(bootstrapCtx, cfg.SearchIndexURL); err != nil {
			log.Warn().Err(err).Str("url", cfg.SearchIndexURL).Msg("search index bootstrap failed")
		} else {
			log.Debug().Str("url", cfg.SearchIndexURL).Msg("search index bootstrap completed")
		}
	}()

	return idx, nil
}

// NewEmbedder creates the embedding provider, or nil when embedding is
// disabled; documents are then indexed without vectors.
func NewEmbedder(cfg *config.Config, log zerolog.Logger) embeddings.Embedder {
	switch cfg.EmbedProvider {
	case "none":
		return nil
	case "", "ollama":
		return ollama.New(cfg.EmbedModel)
	default:
		log.Warn().Str("provider", cfg.EmbedProvider).Msg("unknown embedding provider; using ollama")
		return ollama.New(cfg.EmbedModel)
	}
}
