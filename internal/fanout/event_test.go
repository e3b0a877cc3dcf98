package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sender := model.SenderSnapshot{UserID: "u1", DisplayName: "Ada", AvatarURL: "https://cdn/a.png"}
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := []Event{
		ChannelMessageEvent{
			MessageID: "m1", ChannelID: "c1", WorkspaceID: "w1",
			Content: "hello", Sender: sender, CreationTime: at,
		},
		DirectMessageEvent{
			MessageID: "m2", DMChannelID: "d1",
			Content: "psst", Sender: sender, CreationTime: at,
		},
		ThreadReplyEvent{
			MessageID: "m3", ParentMessageID: "m1", ChannelID: "c1",
			Content: "re: hello", Sender: sender, CreationTime: at,
		},
	}
	for _, evt := range cases {
		data, err := Encode(evt)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, evt, got)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"message_edited","payload":{}}`))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "user-u42", TopicFor("u42"))
}
