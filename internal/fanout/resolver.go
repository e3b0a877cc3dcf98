package fanout

import (
	"context"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// Resolver computes the set of user IDs interested in a message.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver { return &Resolver{store: s} }

// Resolve returns the deduplicated recipient set: every workspace member
// for a channel message, the fixed member set for a DM. The sender is
// included; counter updates filter it separately.
func (r *Resolver) Resolve(ctx context.Context, msg *model.Message) ([]string, error) {
	switch {
	case msg.Conversation.ChannelID != "":
		ch, err := r.store.Channels().Get(ctx, msg.Conversation.ChannelID)
		if err != nil {
			return nil, err
		}
		return r.store.Channels().WorkspaceMemberIDs(ctx, ch.WorkspaceID)
	case msg.Conversation.DMChannelID != "":
		return r.store.DMChannels().MemberIDs(ctx, msg.Conversation.DMChannelID)
	default:
		// Defensive: the Message invariant should prevent this.
		return nil, model.ErrNoConversation
	}
}
