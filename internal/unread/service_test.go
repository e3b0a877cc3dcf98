package unread

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)
	return st
}

func TestOnNewMessageSkipsSender(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, zerolog.Nop(), time.Second)
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}
	msg := &model.Message{MessageID: "m1", Conversation: conv, SenderID: "u1"}

	require.NoError(t, svc.OnNewMessage(ctx, msg, []string{"u1", "u2", "u3"}, []string{"u3"}))

	// Sender has no counter row at all.
	c, err := svc.Counter(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadCount)

	c, err = svc.Counter(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadCount)
	assert.False(t, c.HasMention)

	c, err = svc.Counter(ctx, "u3", conv)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadCount)
	assert.True(t, c.HasMention)
}

func TestOnNewMessageAccumulates(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, zerolog.Nop(), time.Second)
	ctx := context.Background()
	conv := model.ConversationRef{DMChannelID: "d1"}

	for i := 0; i < 3; i++ {
		msg := &model.Message{MessageID: "m", Conversation: conv, SenderID: "u1"}
		require.NoError(t, svc.OnNewMessage(ctx, msg, []string{"u1", "u2"}, nil))
	}

	c, err := svc.Counter(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 3, c.UnreadCount)
}

func TestMentionFlagSticksUntilReset(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, zerolog.Nop(), time.Second)
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}

	msg := &model.Message{MessageID: "m1", Conversation: conv, SenderID: "u1"}
	require.NoError(t, svc.OnNewMessage(ctx, msg, []string{"u2"}, []string{"u2"}))
	// A later message without a mention must not clear the flag.
	require.NoError(t, svc.OnNewMessage(ctx, msg, []string{"u2"}, nil))

	c, err := svc.Counter(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 2, c.UnreadCount)
	assert.True(t, c.HasMention)
}

func TestOnConversationRead(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, zerolog.Nop(), time.Second)
	ctx := context.Background()
	conv := model.ConversationRef{ChannelID: "c1"}

	_, err := st.Messages().Create(ctx, &model.Message{MessageID: "m1", Conversation: conv, SenderID: "u1", Content: "x"})
	require.NoError(t, err)
	_, err = st.Messages().Create(ctx, &model.Message{MessageID: "m2", Conversation: conv, SenderID: "u1", Content: "y"})
	require.NoError(t, err)

	msg := &model.Message{MessageID: "m2", Conversation: conv, SenderID: "u1"}
	require.NoError(t, svc.OnNewMessage(ctx, msg, []string{"u2"}, []string{"u2"}))

	require.NoError(t, svc.OnConversationRead(ctx, "u2", conv))
	c, err := svc.Counter(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadCount)
	assert.False(t, c.HasMention)
	require.NotNil(t, c.LastReadMessageID)
	assert.Equal(t, "m2", *c.LastReadMessageID)

	// Idempotent.
	require.NoError(t, svc.OnConversationRead(ctx, "u2", conv))
}

func TestOnConversationReadEmptyConversation(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, zerolog.Nop(), time.Second)

	require.NoError(t, svc.OnConversationRead(context.Background(), "u2", model.ConversationRef{ChannelID: "empty"}))
}
