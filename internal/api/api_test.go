package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/server/internal/distribute"
	"github.com/loomchat/loom/server/internal/fanout"
	"github.com/loomchat/loom/server/internal/ingest"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store/sqlite"
	"github.com/loomchat/loom/server/internal/thread"
	"github.com/loomchat/loom/server/internal/unread"
)

type nopPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *nopPublisher) Publish(context.Context, string, fanout.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

type testAPI struct {
	router http.Handler
	dist   *distribute.Distributor
	queue  *ingest.MemoryQueue
	pub    *nopPublisher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	log := zerolog.Nop()
	queue := ingest.NewMemoryQueue(ingest.DefaultMaxRetries)
	pub := &nopPublisher{}
	unreadSvc := unread.NewService(st, log, time.Second)
	dist := distribute.NewDistributor(
		st, queue, fanout.NewResolver(st), pub,
		unreadSvc, thread.NewService(st, log), log, 5*time.Second,
	)
	router := NewRouter(Deps{Store: st, Distributor: dist, Unread: unreadSvc})
	return &testAPI{router: router, dist: dist, queue: queue, pub: pub}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) seedChannel(t *testing.T, members ...string) {
	t.Helper()
	for _, uid := range members {
		rr := a.do(t, "POST", "/api/users", map[string]string{"userId": uid, "displayName": "name-" + uid})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := a.do(t, "POST", "/api/channels", map[string]string{"channelId": "c1", "workspaceId": "w1", "name": "general"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	for _, uid := range members {
		rr := a.do(t, "POST", "/api/workspaces/w1/members", map[string]string{"userId": uid})
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
}

func TestMessageLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.seedChannel(t, "u1", "u2")

	rr := a.do(t, "POST", "/api/messages", map[string]interface{}{
		"channelId":        "c1",
		"senderId":         "u1",
		"content":          "hello @u2",
		"mentionedUserIds": []string{"u2"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created model.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.MessageID)
	assert.Equal(t, "c1", created.Conversation.ChannelID)
	a.dist.Drain()

	// Recipient sees the unread state; the sender does not self-count.
	rr = a.do(t, "GET", "/api/users/u2/unread?channelId=c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var counter model.UnreadCounter
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counter))
	assert.Equal(t, 1, counter.UnreadCount)
	assert.True(t, counter.HasMention)

	rr = a.do(t, "GET", "/api/users/u1/unread?channelId=c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counter))
	assert.Equal(t, 0, counter.UnreadCount)

	// Marking the conversation read resets counters idempotently.
	rr = a.do(t, "POST", "/api/users/u2/reads", map[string]string{"channelId": "c1"})
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = a.do(t, "POST", "/api/users/u2/reads", map[string]string{"channelId": "c1"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = a.do(t, "GET", "/api/users/u2/unread?channelId=c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counter))
	assert.Equal(t, 0, counter.UnreadCount)
	assert.False(t, counter.HasMention)
	require.NotNil(t, counter.LastReadMessageID)
	assert.Equal(t, created.MessageID, *counter.LastReadMessageID)

	// The embedding job was queued in the background.
	n, err := a.queue.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rr = a.do(t, "GET", "/api/messages/"+created.MessageID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateMessageValidation(t *testing.T) {
	a := newTestAPI(t)
	a.seedChannel(t, "u1")

	cases := []map[string]interface{}{
		{"senderId": "u1", "content": "no conversation"},
		{"channelId": "c1", "dmChannelId": "d1", "senderId": "u1", "content": "both refs"},
		{"channelId": "c1", "content": "no sender"},
		{"channelId": "c1", "senderId": "u1", "content": "   "},
	}
	for i, body := range cases {
		rr := a.do(t, "POST", "/api/messages", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "case %d: %s", i, rr.Body.String())
	}

	rr := a.do(t, "POST", "/api/messages", map[string]interface{}{
		"channelId": "ghost", "senderId": "u1", "content": "unknown channel",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
}

func TestThreadReplyFlow(t *testing.T) {
	a := newTestAPI(t)
	a.seedChannel(t, "u1", "u2")

	rr := a.do(t, "POST", "/api/messages", map[string]interface{}{
		"channelId": "c1", "senderId": "u1", "content": "root",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var root model.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &root))
	a.dist.Drain()

	rr = a.do(t, "POST", "/api/messages", map[string]interface{}{
		"channelId": "c1", "senderId": "u2", "content": "reply",
		"parentMessageId": root.MessageID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var reply model.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reply))
	a.dist.Drain()

	rr = a.do(t, "GET", "/api/messages/"+root.MessageID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &root))
	assert.Equal(t, 1, root.ReplyCount)
	assert.NotNil(t, root.LatestReplyAt)

	// Threads are single level.
	rr = a.do(t, "POST", "/api/messages", map[string]interface{}{
		"channelId": "c1", "senderId": "u1", "content": "nested",
		"parentMessageId": reply.MessageID,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestDirectoryEndpoints(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, "POST", "/api/users", map[string]string{"userId": "u1", "displayName": "Ada"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "GET", "/api/users/u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, "Ada", u.DisplayName)

	rr = a.do(t, "GET", "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "POST", "/api/users", map[string]string{"userId": "u2"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "POST", "/api/dms", map[string]interface{}{"memberIds": []string{"u1"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthEndpointWithoutChecker(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
