package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// BootstrapWeaviate ensures the ChatMessage class exists. Vectors are
// supplied by the ingestion worker, so the class vectorizer stays off.
// Safe to call repeatedly.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	msg := &models.Class{
		Class:      messageClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "messageId", DataType: []string{"uuid"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "creationTime", DataType: []string{"date"}},
		},
	}

	ex, err := cl.Schema().ClassGetter().WithClassName(msg.Class).Do(cctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(msg).Do(cctx); err != nil {
		return fmt.Errorf("create class %s: %w", msg.Class, err)
	}
	return nil
}
