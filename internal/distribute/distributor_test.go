package distribute

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/fanout"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/store/sqlite"
	"github.com/loomchat/loom/server/internal/thread"
	"github.com/loomchat/loom/server/internal/unread"
)

type capturePublisher struct {
	mu     sync.Mutex
	events map[string][]fanout.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(map[string][]fanout.Event)}
}

func (p *capturePublisher) Publish(_ context.Context, userID string, evt fanout.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[userID] = append(p.events[userID], evt)
	return nil
}

func (p *capturePublisher) eventsFor(userID string) []fanout.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[userID]
}

type fixture struct {
	store store.Store
	queue *ingest.MemoryQueue
	pub   *capturePublisher
	dist  *Distributor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	queue := ingest.NewMemoryQueue(ingest.DefaultMaxRetries)
	pub := newCapturePublisher()
	log := zerolog.Nop()
	dist := NewDistributor(
		st, queue, fanout.NewResolver(st), pub,
		unread.NewService(st, log, time.Second),
		thread.NewService(st, log),
		log, 5*time.Second,
	)
	return &fixture{store: st, queue: queue, pub: pub, dist: dist}
}

func (f *fixture) seedChannel(t *testing.T, members ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Channels().Create(ctx, &model.Channel{ChannelID: "c1", WorkspaceID: "w1", Name: "general"})
	require.NoError(t, err)
	for _, uid := range members {
		_, err := f.store.Users().Create(ctx, &model.User{UserID: uid, DisplayName: "name-" + uid})
		require.NoError(t, err)
		require.NoError(t, f.store.Channels().AddWorkspaceMember(ctx, "w1", uid))
	}
}

func TestDistributeChannelMessage(t *testing.T) {
	f := newFixture(t)
	f.seedChannel(t, "u1", "u2", "u3")
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}

	msg, err := f.store.Messages().Create(ctx, &model.Message{
		MessageID: "m1", Conversation: conv, SenderID: "u1", Content: "hello team",
	})
	require.NoError(t, err)

	require.NoError(t, f.dist.Distribute(ctx, msg, []string{"u3"}))
	f.dist.Drain()

	// Counters: sender skipped, mention flagged.
	c, err := f.store.Counters().Get(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadCount)
	assert.False(t, c.HasMention)
	c, err = f.store.Counters().Get(ctx, "u3", conv)
	require.NoError(t, err)
	assert.True(t, c.HasMention)
	_, err = f.store.Counters().Get(ctx, "u1", conv)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Embedding job queued.
	n, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Every workspace member, sender included, got the live event.
	for _, uid := range []string{"u1", "u2", "u3"} {
		events := f.pub.eventsFor(uid)
		require.Len(t, events, 1, "recipient %s", uid)
		evt, ok := events[0].(fanout.ChannelMessageEvent)
		require.True(t, ok)
		assert.Equal(t, "m1", evt.MessageID)
		assert.Equal(t, "w1", evt.WorkspaceID)
		assert.Equal(t, "name-u1", evt.Sender.DisplayName)
	}
}

func TestDistributeDirectMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2"} {
		_, err := f.store.Users().Create(ctx, &model.User{UserID: uid, DisplayName: uid})
		require.NoError(t, err)
	}
	_, err := f.store.DMChannels().Create(ctx, &model.DMChannel{DMChannelID: "d1"}, []string{"u1", "u2"})
	require.NoError(t, err)
	conv := model.ConversationRef{DMChannelID: "d1"}

	msg, err := f.store.Messages().Create(ctx, &model.Message{
		MessageID: "m1", Conversation: conv, SenderID: "u1", Content: "psst",
	})
	require.NoError(t, err)

	require.NoError(t, f.dist.Distribute(ctx, msg, nil))
	f.dist.Drain()

	c, err := f.store.Counters().Get(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadCount)

	events := f.pub.eventsFor("u2")
	require.Len(t, events, 1)
	evt, ok := events[0].(fanout.DirectMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "d1", evt.DMChannelID)
}

func TestDistributeThreadReply(t *testing.T) {
	f := newFixture(t)
	f.seedChannel(t, "u1", "u2")
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}

	_, err := f.store.Messages().Create(ctx, &model.Message{
		MessageID: "p1", Conversation: conv, SenderID: "u1", Content: "root",
	})
	require.NoError(t, err)
	parentID := "p1"
	reply, err := f.store.Messages().Create(ctx, &model.Message{
		MessageID: "r1", Conversation: conv, SenderID: "u2", Content: "reply",
		ParentMessageID: &parentID,
	})
	require.NoError(t, err)

	require.NoError(t, f.dist.Distribute(ctx, reply, nil))
	f.dist.Drain()

	parent, err := f.store.Messages().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, parent.ReplyCount)
	require.NotNil(t, parent.LatestReplyAt)

	// Each recipient gets the regular channel event first, then the
	// thread event routing the reply into the open thread view.
	for _, uid := range []string{"u1", "u2"} {
		events := f.pub.eventsFor(uid)
		require.Len(t, events, 2, "recipient %s", uid)

		primary, ok := events[0].(fanout.ChannelMessageEvent)
		require.True(t, ok, "recipient %s first event", uid)
		assert.Equal(t, "r1", primary.MessageID)
		assert.Equal(t, "c1", primary.ChannelID)
		assert.Equal(t, "w1", primary.WorkspaceID)

		threadEvt, ok := events[1].(fanout.ThreadReplyEvent)
		require.True(t, ok, "recipient %s second event", uid)
		assert.Equal(t, "r1", threadEvt.MessageID)
		assert.Equal(t, "p1", threadEvt.ParentMessageID)
		assert.Equal(t, "c1", threadEvt.ChannelID)
	}
}

func TestDistributeRejectsNestedReply(t *testing.T) {
	f := newFixture(t)
	f.seedChannel(t, "u1", "u2")
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}

	_, err := f.store.Messages().Create(ctx, &model.Message{MessageID: "p1", Conversation: conv, SenderID: "u1", Content: "root"})
	require.NoError(t, err)
	p1 := "p1"
	_, err = f.store.Messages().Create(ctx, &model.Message{MessageID: "r1", Conversation: conv, SenderID: "u2", Content: "reply", ParentMessageID: &p1})
	require.NoError(t, err)

	r1 := "r1"
	nested := &model.Message{MessageID: "r2", Conversation: conv, SenderID: "u1", Content: "nested", ParentMessageID: &r1}
	err = f.dist.Distribute(ctx, nested, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	// Rejected before any counter update.
	_, err = f.store.Counters().Get(ctx, "u2", conv)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDistributeRejectsMissingConversation(t *testing.T) {
	f := newFixture(t)
	err := f.dist.Distribute(context.Background(), &model.Message{MessageID: "m1", SenderID: "u1"}, nil)
	assert.ErrorIs(t, err, model.ErrNoConversation)
}

func TestDistributeUnknownChannelPropagates(t *testing.T) {
	f := newFixture(t)
	err := f.dist.Distribute(context.Background(), &model.Message{
		MessageID: "m1", Conversation: model.ConversationRef{ChannelID: "ghost"}, SenderID: "u1",
	}, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
