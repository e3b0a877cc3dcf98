// Package distribute orchestrates everything that happens after a
// message row is persisted: synchronous unread and thread updates, then
// background embedding enqueue and live fan-out.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/fanout"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/thread"
	"github.com/loomchat/loom/server/internal/unread"
)

// Distributor fans a freshly persisted message out to its recipients.
//
// Counter and thread-metadata updates run synchronously and their
// failures propagate to the caller: unread state is the source of truth
// for badges on next load. Embedding enqueue and live publish run in the
// background and never block or fail the caller.
type Distributor struct {
	store     store.Store
	queue     ingest.Queue
	resolver  *fanout.Resolver
	pub       fanout.Publisher
	unread    *unread.Service
	thread    *thread.Service
	log       zerolog.Logger
	bgTimeout time.Duration

	wg sync.WaitGroup
}

func NewDistributor(
	st store.Store,
	queue ingest.Queue,
	resolver *fanout.Resolver,
	pub fanout.Publisher,
	unreadSvc *unread.Service,
	threadSvc *thread.Service,
	log zerolog.Logger,
	bgTimeout time.Duration,
) *Distributor {
	if bgTimeout <= 0 {
		bgTimeout = 10 * time.Second
	}
	return &Distributor{
		store:     st,
		queue:     queue,
		resolver:  resolver,
		pub:       pub,
		unread:    unreadSvc,
		thread:    threadSvc,
		log:       log.With().Str("component", "distribute").Logger(),
		bgTimeout: bgTimeout,
	}
}

// Distribute runs the post-persist pipeline for msg. The message must
// already be stored; Distribute never writes the message row itself.
func (d *Distributor) Distribute(ctx context.Context, msg *model.Message, mentionedUserIDs []string) error {
	if msg == nil || msg.MessageID == "" {
		return fmt.Errorf("distribute: missing message: %w", model.ErrValidation)
	}
	if !msg.Conversation.Valid() {
		return fmt.Errorf("distribute message %s: %w", msg.MessageID, model.ErrNoConversation)
	}

	recipients, err := d.resolver.Resolve(ctx, msg)
	if err != nil {
		return fmt.Errorf("resolve recipients for %s: %w", msg.MessageID, err)
	}

	var parent *model.Message
	if msg.IsReply() {
		parent, err = d.thread.OnReply(ctx, msg)
		if err != nil {
			return err
		}
	}

	if err := d.unread.OnNewMessage(ctx, msg, recipients, mentionedUserIDs); err != nil {
		return err
	}

	d.wg.Add(1)
	go d.background(msg, parent, recipients)
	messagesDistributed.Inc()
	return nil
}

// Drain blocks until all in-flight background work finishes. Called on
// shutdown so buffered publishes and enqueues are not lost.
func (d *Distributor) Drain() { d.wg.Wait() }

func (d *Distributor) background(msg *model.Message, parent *model.Message, recipients []string) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), d.bgTimeout)
	defer cancel()

	if err := d.queue.Add(ctx, msg.MessageID, msg.Content); err != nil {
		d.log.Error().Err(err).Str("messageId", msg.MessageID).Msg("embedding enqueue failed")
	}

	snapshot := d.senderSnapshot(ctx, msg.SenderID)
	primary, err := d.primaryEvent(ctx, msg, snapshot)
	if err != nil {
		d.log.Error().Err(err).Str("messageId", msg.MessageID).Msg("fanout event build failed")
		return
	}
	fanout.Deliver(ctx, d.pub, d.log, recipients, primary)

	// A reply additionally carries a thread event so open thread views
	// update without re-fetching the parent.
	if parent != nil {
		fanout.Deliver(ctx, d.pub, d.log, recipients, fanout.ThreadReplyEvent{
			MessageID:       msg.MessageID,
			ParentMessageID: parent.MessageID,
			ChannelID:       msg.Conversation.ChannelID,
			DMChannelID:     msg.Conversation.DMChannelID,
			Content:         msg.Content,
			Sender:          snapshot,
			CreationTime:    msg.CreationTime,
		})
	}
}

// primaryEvent builds the conversation-level event every recipient gets,
// reply or not.
func (d *Distributor) primaryEvent(ctx context.Context, msg *model.Message, snapshot model.SenderSnapshot) (fanout.Event, error) {
	if msg.Conversation.ChannelID != "" {
		ch, err := d.store.Channels().Get(ctx, msg.Conversation.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("load channel %s: %w", msg.Conversation.ChannelID, err)
		}
		return fanout.ChannelMessageEvent{
			MessageID:    msg.MessageID,
			ChannelID:    ch.ChannelID,
			WorkspaceID:  ch.WorkspaceID,
			Content:      msg.Content,
			Sender:       snapshot,
			CreationTime: msg.CreationTime,
		}, nil
	}
	return fanout.DirectMessageEvent{
		MessageID:    msg.MessageID,
		DMChannelID:  msg.Conversation.DMChannelID,
		Content:      msg.Content,
		Sender:       snapshot,
		CreationTime: msg.CreationTime,
	}, nil
}

// senderSnapshot freezes the sender's display fields. A missing user row
// degrades to a bare ID rather than failing the whole fan-out.
func (d *Distributor) senderSnapshot(ctx context.Context, senderID string) model.SenderSnapshot {
	u, err := d.store.Users().Get(ctx, senderID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			d.log.Warn().Err(err).Str("userId", senderID).Msg("sender snapshot lookup failed")
		}
		return model.SenderSnapshot{UserID: senderID}
	}
	return u.Snapshot()
}
