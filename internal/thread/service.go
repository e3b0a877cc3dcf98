// Package thread maintains reply metadata on thread parents. Threads are
// single level: a parent is always a top-level message, replies cannot be
// replied to.
package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log.With().Str("component", "thread").Logger()}
}

// OnReply validates the thread target of a reply and bumps the parent's
// reply_count and latest_reply_at in one statement. Returns the parent.
//
// Rejected with ErrValidation: replies whose parent does not exist, lives
// in a different conversation, or is itself a reply.
func (s *Service) OnReply(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if !msg.IsReply() {
		return nil, fmt.Errorf("message %s is not a reply: %w", msg.MessageID, model.ErrValidation)
	}
	parentID := *msg.ParentMessageID
	parent, err := s.store.Messages().Get(ctx, parentID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("thread parent %s not found: %w", parentID, model.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread parent %s: %w", parentID, err)
	}
	if parent.IsReply() {
		return nil, fmt.Errorf("thread parent %s is itself a reply: %w", parentID, model.ErrValidation)
	}
	if parent.Conversation != msg.Conversation {
		return nil, fmt.Errorf("reply %s targets a parent in another conversation: %w", msg.MessageID, model.ErrValidation)
	}
	if err := s.store.Messages().IncrementReplyCount(ctx, parentID, msg.CreationTime); err != nil {
		return nil, fmt.Errorf("increment reply count on %s: %w", parentID, err)
	}
	repliesRecorded.Inc()
	return parent, nil
}
