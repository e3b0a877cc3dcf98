package searchindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

const messageClass = "ChatMessage"

// weavIndex implements Index using the Weaviate Go client.
type weavIndex struct {
	client  *weaviate.Client
	baseURL string // host:port without scheme
}

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8081".
func NewWeaviateIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weavIndex{client: cl, baseURL: baseURL}, nil
}

func (w *weavIndex) UpsertMessages(ctx context.Context, docs []MessageDoc) error {
	if len(docs) == 0 {
		return nil
	}
	objs := make([]*models.Object, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			return fmt.Errorf("%w: message %s has empty content", ErrInvalidDoc, d.MessageID)
		}
		if d.MessageID == "" {
			return fmt.Errorf("%w: missing message id", ErrInvalidDoc)
		}
		props := map[string]interface{}{
			"messageId":    d.MessageID,
			"content":      d.Content,
			"creationTime": d.CreationTime,
		}
		objs = append(objs, &models.Object{
			Class:      messageClass,
			ID:         strfmt.UUID(d.MessageID),
			Properties: props,
			Vector:     d.Vector,
		})
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch upsert %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// HealthPing reports readiness of the Weaviate instance.
func (w *weavIndex) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("weaviate at %s not ready", w.baseURL)
	}
	return nil
}
