package model

import (
	"strings"
	"time"
)

// ConversationRef identifies the conversation a message belongs to.
// Exactly one of ChannelID or DMChannelID must be set.
type ConversationRef struct {
	ChannelID   string `json:"channelId,omitempty"`
	DMChannelID string `json:"dmChannelId,omitempty"`
}

// IsZero reports whether neither side of the ref is set.
func (r ConversationRef) IsZero() bool { return r.ChannelID == "" && r.DMChannelID == "" }

// Valid reports whether exactly one of ChannelID / DMChannelID is set.
func (r ConversationRef) Valid() bool {
	return (r.ChannelID == "") != (r.DMChannelID == "")
}

// Key returns a stable string form used for counter rows and logging.
func (r ConversationRef) Key() string {
	if r.ChannelID != "" {
		return "ch:" + r.ChannelID
	}
	return "dm:" + r.DMChannelID
}

// ParseConversationKey is the inverse of ConversationRef.Key.
func ParseConversationKey(key string) ConversationRef {
	switch {
	case strings.HasPrefix(key, "ch:"):
		return ConversationRef{ChannelID: key[3:]}
	case strings.HasPrefix(key, "dm:"):
		return ConversationRef{DMChannelID: key[3:]}
	}
	return ConversationRef{}
}

// Message is a persisted chat message. Immutable after creation except
// ReplyCount and LatestReplyAt, which only the thread service mutates.
type Message struct {
	MessageID       string          `json:"messageId"`
	Conversation    ConversationRef `json:"conversation"`
	SenderID        string          `json:"senderId"`
	Content         string          `json:"content"`
	ParentMessageID *string         `json:"parentMessageId,omitempty"`
	ReplyCount      int             `json:"replyCount"`
	LatestReplyAt   *time.Time      `json:"latestReplyAt,omitempty"`
	CreationTime    time.Time       `json:"creationTime"`
}

// IsReply reports whether the message targets a thread parent.
func (m *Message) IsReply() bool {
	return m.ParentMessageID != nil && *m.ParentMessageID != ""
}

// SenderSnapshot carries the sender display fields captured at publish
// time. Recipients may hold staler sender metadata than the live record.
type SenderSnapshot struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// User is an account in a workspace.
type User struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreationTime time.Time `json:"creationTime"`
}

// Snapshot freezes the display fields for a fan-out event.
func (u *User) Snapshot() SenderSnapshot {
	return SenderSnapshot{UserID: u.UserID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// Channel is a persistent multi-user conversation scoped to a workspace.
type Channel struct {
	ChannelID    string    `json:"channelId"`
	WorkspaceID  string    `json:"workspaceId"`
	Name         string    `json:"name"`
	CreationTime time.Time `json:"creationTime"`
}

// DMChannel is a private conversation between a fixed member set.
type DMChannel struct {
	DMChannelID  string    `json:"dmChannelId"`
	CreationTime time.Time `json:"creationTime"`
}

// UnreadCounter is the per-user per-conversation unread state. Created
// lazily on first increment; mutated only by atomic increment or a full
// reset on read.
type UnreadCounter struct {
	UserID            string          `json:"userId"`
	Conversation      ConversationRef `json:"conversation"`
	UnreadCount       int             `json:"unreadCount"`
	HasMention        bool            `json:"hasMention"`
	LastReadMessageID *string         `json:"lastReadMessageId,omitempty"`
	UpdateTime        time.Time       `json:"updateTime"`
}

// IngestJob is a pending embedding job. Dropped once RetryCount exceeds
// the worker's retry budget.
type IngestJob struct {
	JobID       int64     `json:"jobId"`
	MessageID   string    `json:"messageId"`
	Content     string    `json:"content"`
	Priority    int       `json:"priority"`
	RetryCount  int       `json:"retryCount"`
	EnqueueTime time.Time `json:"enqueueTime"`
}
