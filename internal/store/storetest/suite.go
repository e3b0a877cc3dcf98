package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	// Users and memberships
	sender, err := s.Users().Create(ctx, &model.User{DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("CreateUser sender: %v", err)
	}
	reader, err := s.Users().Create(ctx, &model.User{DisplayName: "Grace"})
	if err != nil {
		t.Fatalf("CreateUser reader: %v", err)
	}
	if got, err := s.Users().Get(ctx, sender.UserID); err != nil || got.DisplayName != "Ada" {
		t.Fatalf("GetUser: got=%v err=%v", got, err)
	}

	wsID := "ws-" + uuid.New().String()
	ch, err := s.Channels().Create(ctx, &model.Channel{WorkspaceID: wsID, Name: "general"})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	for _, uid := range []string{sender.UserID, reader.UserID} {
		if err := s.Channels().AddWorkspaceMember(ctx, wsID, uid); err != nil {
			t.Fatalf("AddWorkspaceMember: %v", err)
		}
	}
	// duplicate add must be a no-op
	if err := s.Channels().AddWorkspaceMember(ctx, wsID, reader.UserID); err != nil {
		t.Fatalf("AddWorkspaceMember dup: %v", err)
	}
	if ids, err := s.Channels().WorkspaceMemberIDs(ctx, wsID); err != nil || len(ids) != 2 {
		t.Fatalf("WorkspaceMemberIDs: n=%d err=%v", len(ids), err)
	}

	dm, err := s.DMChannels().Create(ctx, &model.DMChannel{}, []string{sender.UserID, reader.UserID})
	if err != nil {
		t.Fatalf("CreateDMChannel: %v", err)
	}
	if ids, err := s.DMChannels().MemberIDs(ctx, dm.DMChannelID); err != nil || len(ids) != 2 {
		t.Fatalf("DM MemberIDs: n=%d err=%v", len(ids), err)
	}

	// Messages
	conv := model.ConversationRef{ChannelID: ch.ChannelID}
	root, err := s.Messages().Create(ctx, &model.Message{Conversation: conv, SenderID: sender.UserID, Content: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if root.MessageID == "" {
		t.Fatalf("CreateMessage: empty id")
	}
	if _, err := s.Messages().Create(ctx, &model.Message{SenderID: sender.UserID, Content: "no conv"}); err == nil {
		t.Fatalf("CreateMessage without conversation should fail")
	}
	if got, err := s.Messages().Get(ctx, root.MessageID); err != nil || got.Content != "hello" {
		t.Fatalf("GetMessage: got=%v err=%v", got, err)
	}
	if latest, err := s.Messages().LatestID(ctx, conv); err != nil || latest != root.MessageID {
		t.Fatalf("LatestID: got=%q err=%v", latest, err)
	}

	// Reply counters: two increments, both reflected
	replyAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Messages().IncrementReplyCount(ctx, root.MessageID, replyAt); err != nil {
		t.Fatalf("IncrementReplyCount 1: %v", err)
	}
	if err := s.Messages().IncrementReplyCount(ctx, root.MessageID, replyAt.Add(time.Second)); err != nil {
		t.Fatalf("IncrementReplyCount 2: %v", err)
	}
	if got, _ := s.Messages().Get(ctx, root.MessageID); got.ReplyCount != 2 || got.LatestReplyAt == nil {
		t.Fatalf("reply metadata: count=%d latest=%v", got.ReplyCount, got.LatestReplyAt)
	}
	if err := s.Messages().IncrementReplyCount(ctx, "missing", replyAt); err == nil {
		t.Fatalf("IncrementReplyCount on missing parent should fail")
	}

	// Unread counters: lazy creation, atomic increments, OR-ed mention
	if _, err := s.Counters().Get(ctx, reader.UserID, conv); err == nil {
		t.Fatalf("counter should not exist before first increment")
	}
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(mention bool) {
			defer wg.Done()
			if err := s.Counters().Increment(ctx, reader.UserID, conv, mention); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}(i == 7)
	}
	wg.Wait()
	got, err := s.Counters().Get(ctx, reader.UserID, conv)
	if err != nil {
		t.Fatalf("Get counter: %v", err)
	}
	if got.UnreadCount != n {
		t.Fatalf("lost updates: unread=%d want %d", got.UnreadCount, n)
	}
	if !got.HasMention {
		t.Fatalf("mention flag should be set")
	}

	// Reset is idempotent and clears mention state
	for i := 0; i < 2; i++ {
		if err := s.Counters().Reset(ctx, reader.UserID, conv, root.MessageID); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	got, err = s.Counters().Get(ctx, reader.UserID, conv)
	if err != nil || got.UnreadCount != 0 || got.HasMention {
		t.Fatalf("after reset: %+v err=%v", got, err)
	}
	if got.LastReadMessageID == nil || *got.LastReadMessageID != root.MessageID {
		t.Fatalf("last read not recorded: %+v", got)
	}

	// Reset on a never-incremented counter creates the zero row
	if err := s.Counters().Reset(ctx, sender.UserID, conv, root.MessageID); err != nil {
		t.Fatalf("Reset fresh: %v", err)
	}

	runJobs(t, s)
}

func runJobs(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	for _, c := range []string{"first", "second", "third"} {
		if err := s.Jobs().Enqueue(ctx, "m-"+c, c); err != nil {
			t.Fatalf("Enqueue %s: %v", c, err)
		}
	}
	if n, err := s.Jobs().Pending(ctx); err != nil || n != 3 {
		t.Fatalf("Pending: n=%d err=%v", n, err)
	}

	batch, err := s.Jobs().Lease(ctx, 2, time.Minute)
	if err != nil || len(batch) != 2 {
		t.Fatalf("Lease: n=%d err=%v", len(batch), err)
	}
	if batch[0].Content != "first" || batch[1].Content != "second" {
		t.Fatalf("lease order: %q, %q", batch[0].Content, batch[1].Content)
	}

	// Leased jobs are invisible to a second consumer within the window.
	rest, err := s.Jobs().Lease(ctx, 10, time.Minute)
	if err != nil || len(rest) != 1 || rest[0].Content != "third" {
		t.Fatalf("second lease: n=%d err=%v", len(rest), err)
	}

	// Ack removes; the id never reappears.
	if err := s.Jobs().Ack(ctx, []int64{batch[0].JobID}); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if n, _ := s.Jobs().Pending(ctx); n != 2 {
		t.Fatalf("Pending after ack: %d", n)
	}

	// Retry releases the lease and lowers priority; job reappears last.
	dropped, err := s.Jobs().Retry(ctx, batch[1].JobID, 3)
	if err != nil || dropped {
		t.Fatalf("Retry: dropped=%v err=%v", dropped, err)
	}
	again, err := s.Jobs().Lease(ctx, 10, time.Minute)
	if err != nil || len(again) != 1 {
		t.Fatalf("lease after retry: n=%d err=%v", len(again), err)
	}
	if again[0].JobID != batch[1].JobID || again[0].RetryCount != 1 || again[0].Priority != 0 {
		t.Fatalf("retried job state: %+v", again[0])
	}

	// Exhausting the budget drops the job.
	var gone bool
	for i := 0; i < 3; i++ {
		gone, err = s.Jobs().Retry(ctx, batch[1].JobID, 3)
		if err != nil {
			t.Fatalf("Retry %d: %v", i, err)
		}
	}
	if !gone {
		t.Fatalf("job should be dropped after exceeding budget")
	}
	if n, _ := s.Jobs().Pending(ctx); n != 1 {
		t.Fatalf("Pending after drop: %d", n)
	}
}
