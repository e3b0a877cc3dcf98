// Package unread maintains per-user per-conversation unread state.
// Counter rows are created lazily on first increment; an absent row
// reads as zero unread.
package unread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// Service applies counter updates synchronously on the message path.
// Store errors are retried with exponential backoff and then surfaced:
// a silently missed increment is a correctness bug, not a degradation.
type Service struct {
	store      store.Store
	log        zerolog.Logger
	maxElapsed time.Duration
}

func NewService(s store.Store, log zerolog.Logger, maxElapsed time.Duration) *Service {
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Second
	}
	return &Service{store: s, log: log.With().Str("component", "unread").Logger(), maxElapsed: maxElapsed}
}

// OnNewMessage increments the counter of every recipient except the
// sender. Mentioned recipients additionally get has_mention set. The
// first failed increment aborts the rest and propagates.
func (s *Service) OnNewMessage(ctx context.Context, msg *model.Message, recipients []string, mentionedUserIDs []string) error {
	mentioned := make(map[string]struct{}, len(mentionedUserIDs))
	for _, id := range mentionedUserIDs {
		mentioned[id] = struct{}{}
	}
	for _, userID := range recipients {
		if userID == msg.SenderID {
			continue
		}
		_, isMention := mentioned[userID]
		if err := s.increment(ctx, userID, msg.Conversation, isMention); err != nil {
			return fmt.Errorf("increment unread for user %s in %s: %w", userID, msg.Conversation.Key(), err)
		}
		incrementsApplied.Inc()
	}
	return nil
}

func (s *Service) increment(ctx context.Context, userID string, conv model.ConversationRef, mention bool) error {
	op := func() error {
		err := s.store.Counters().Increment(ctx, userID, conv, mention)
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// OnConversationRead zeroes the caller's counter and records the newest
// message in the conversation as the read high-water mark. Safe to call
// repeatedly.
func (s *Service) OnConversationRead(ctx context.Context, userID string, conv model.ConversationRef) error {
	latest, err := s.store.Messages().LatestID(ctx, conv)
	if err != nil {
		return fmt.Errorf("resolve latest message in %s: %w", conv.Key(), err)
	}
	if err := s.store.Counters().Reset(ctx, userID, conv, latest); err != nil {
		return fmt.Errorf("reset unread for user %s in %s: %w", userID, conv.Key(), err)
	}
	resetsApplied.Inc()
	return nil
}

// Counter returns the current unread state, mapping an absent row to the
// zero counter.
func (s *Service) Counter(ctx context.Context, userID string, conv model.ConversationRef) (*model.UnreadCounter, error) {
	c, err := s.store.Counters().Get(ctx, userID, conv)
	if errors.Is(err, model.ErrNotFound) {
		return &model.UnreadCounter{UserID: userID, Conversation: conv}, nil
	}
	return c, err
}
