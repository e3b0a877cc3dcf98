package fanout

import (
	"encoding/json"
	"time"

	"github.com/loomchat/loom/server/internal/model"
)

// Kind tags the closed set of live event types.
type Kind string

const (
	KindNewChannelMessage Kind = "new_channel_message"
	KindNewDirectMessage  Kind = "new_direct_message"
	KindNewThreadReply    Kind = "new_thread_reply"
)

// Event is the closed union of fan-out payloads. Each kind carries a
// fixed field set and a sender snapshot captured at publish time.
type Event interface {
	Kind() Kind
}

// ChannelMessageEvent announces a new message in a workspace channel.
type ChannelMessageEvent struct {
	MessageID    string               `json:"messageId"`
	ChannelID    string               `json:"channelId"`
	WorkspaceID  string               `json:"workspaceId"`
	Content      string               `json:"content"`
	Sender       model.SenderSnapshot `json:"sender"`
	CreationTime time.Time            `json:"creationTime"`
}

func (ChannelMessageEvent) Kind() Kind { return KindNewChannelMessage }

// DirectMessageEvent announces a new message in a DM channel.
type DirectMessageEvent struct {
	MessageID    string               `json:"messageId"`
	DMChannelID  string               `json:"dmChannelId"`
	Content      string               `json:"content"`
	Sender       model.SenderSnapshot `json:"sender"`
	CreationTime time.Time            `json:"creationTime"`
}

func (DirectMessageEvent) Kind() Kind { return KindNewDirectMessage }

// ThreadReplyEvent announces a reply; ParentMessageID routes the event
// into the correct open thread view.
type ThreadReplyEvent struct {
	MessageID       string               `json:"messageId"`
	ParentMessageID string               `json:"parentMessageId"`
	ChannelID       string               `json:"channelId,omitempty"`
	DMChannelID     string               `json:"dmChannelId,omitempty"`
	Content         string               `json:"content"`
	Sender          model.SenderSnapshot `json:"sender"`
	CreationTime    time.Time            `json:"creationTime"`
}

func (ThreadReplyEvent) Kind() Kind { return KindNewThreadReply }

// Envelope is the wire form: kind plus the kind-specific payload.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps an event in its envelope.
func Encode(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: evt.Kind(), Payload: payload})
}

// Decode unwraps an envelope into the concrete event type.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindNewChannelMessage:
		var evt ChannelMessageEvent
		return evt, json.Unmarshal(env.Payload, &evt)
	case KindNewDirectMessage:
		var evt DirectMessageEvent
		return evt, json.Unmarshal(env.Payload, &evt)
	case KindNewThreadReply:
		var evt ThreadReplyEvent
		return evt, json.Unmarshal(env.Payload, &evt)
	default:
		return nil, model.ErrValidation
	}
}
