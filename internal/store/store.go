package store

import (
	"context"
	"time"

	"github.com/loomchat/loom/server/internal/model"
)

// Store exposes persistence operations required by the distribution
// pipeline. Implementations live under internal/store/<driver>/
// (postgres for production, sqlite for dev mode and tests).
type Store interface {
	Users() Users
	Channels() Channels
	DMChannels() DMChannels
	Messages() Messages
	Counters() Counters
	Jobs() Jobs
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
}

type Channels interface {
	Create(ctx context.Context, c *model.Channel) (*model.Channel, error)
	Get(ctx context.Context, channelID string) (*model.Channel, error)
	AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error
	// WorkspaceMemberIDs returns the deduplicated member set for a workspace.
	WorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error)
}

type DMChannels interface {
	Create(ctx context.Context, d *model.DMChannel, memberIDs []string) (*model.DMChannel, error)
	MemberIDs(ctx context.Context, dmChannelID string) ([]string, error)
}

type Messages interface {
	Create(ctx context.Context, m *model.Message) (*model.Message, error)
	Get(ctx context.Context, messageID string) (*model.Message, error)
	// IncrementReplyCount bumps reply_count by 1 and sets latest_reply_at in a
	// single statement. Concurrent replies must both be reflected.
	IncrementReplyCount(ctx context.Context, parentMessageID string, at time.Time) error
	// LatestID returns the newest message id in a conversation, or "" when empty.
	LatestID(ctx context.Context, conv model.ConversationRef) (string, error)
}

type Counters interface {
	// Increment is a single atomic upsert: creates the row with count 1 on
	// first touch, otherwise adds 1; has_mention is OR-ed, never cleared here.
	Increment(ctx context.Context, userID string, conv model.ConversationRef, mention bool) error
	// Reset idempotently zeroes the counter and records the last read message.
	Reset(ctx context.Context, userID string, conv model.ConversationRef, lastReadMessageID string) error
	Get(ctx context.Context, userID string, conv model.ConversationRef) (*model.UnreadCounter, error)
}

// Jobs is the durable ingestion queue. Rows survive process restarts and
// are shared by multiple worker instances via lease semantics.
type Jobs interface {
	Enqueue(ctx context.Context, messageID, content string) error
	// Lease returns up to n jobs ordered by priority desc then enqueue order,
	// marking each invisible to other consumers until the visibility window
	// lapses. Jobs stay pending until Ack or a terminal Retry.
	Lease(ctx context.Context, n int, visibility time.Duration) ([]*model.IngestJob, error)
	Ack(ctx context.Context, ids []int64) error
	// Retry increments retry_count, lowers priority and releases the lease.
	// When retry_count exceeds maxRetries the job is dropped and Retry
	// reports dropped=true.
	Retry(ctx context.Context, id int64, maxRetries int) (dropped bool, err error)
	Pending(ctx context.Context) (int, error)
}
