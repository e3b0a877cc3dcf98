package fanout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store/sqlite"
)

func TestResolveChannelMessage(t *testing.T) {
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = st.Channels().Create(ctx, &model.Channel{ChannelID: "c1", WorkspaceID: "w1", Name: "general"})
	require.NoError(t, err)
	for _, uid := range []string{"u1", "u2", "u3"} {
		_, err = st.Users().Create(ctx, &model.User{UserID: uid, DisplayName: uid})
		require.NoError(t, err)
		require.NoError(t, st.Channels().AddWorkspaceMember(ctx, "w1", uid))
	}

	r := NewResolver(st)
	got, err := r.Resolve(ctx, &model.Message{
		MessageID:    "m1",
		Conversation: model.ConversationRef{ChannelID: "c1"},
		SenderID:     "u1",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, got)
}

func TestResolveDirectMessage(t *testing.T) {
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	ctx := context.Background()
	for _, uid := range []string{"u1", "u2"} {
		_, err = st.Users().Create(ctx, &model.User{UserID: uid, DisplayName: uid})
		require.NoError(t, err)
	}
	_, err = st.DMChannels().Create(ctx, &model.DMChannel{DMChannelID: "d1"}, []string{"u1", "u2"})
	require.NoError(t, err)

	r := NewResolver(st)
	got, err := r.Resolve(ctx, &model.Message{
		MessageID:    "m1",
		Conversation: model.ConversationRef{DMChannelID: "d1"},
		SenderID:     "u1",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, got)
}

func TestResolveUnknownChannel(t *testing.T) {
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	r := NewResolver(st)
	_, err = r.Resolve(context.Background(), &model.Message{
		MessageID:    "m1",
		Conversation: model.ConversationRef{ChannelID: "nope"},
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResolveNoConversation(t *testing.T) {
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	r := NewResolver(st)
	_, err = r.Resolve(context.Background(), &model.Message{MessageID: "m1"})
	assert.ErrorIs(t, err, model.ErrNoConversation)
}
