package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// New opens (or creates) a SQLite database file, applies the schema and
// returns a store.Store. Used for dev mode and tests; Postgres is the
// production driver.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB wires the adapter onto an existing connection and ensures the
// schema exists. Safe to call repeatedly.
func NewWithDB(db *sql.DB) (store.Store, error) {
	for _, stmt := range DDLStatements() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return &liteStore{db: db}, nil
}

type liteStore struct{ db *sql.DB }

func (s *liteStore) Users() store.Users           { return &users{db: s.db} }
func (s *liteStore) Channels() store.Channels     { return &channels{db: s.db} }
func (s *liteStore) DMChannels() store.DMChannels { return &dmChannels{db: s.db} }
func (s *liteStore) Messages() store.Messages     { return &messages{db: s.db} }
func (s *liteStore) Counters() store.Counters     { return &counters{db: s.db} }
func (s *liteStore) Jobs() store.Jobs             { return &jobs{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *liteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	id := m.UserID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if _, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, display_name, avatar_url, creation_time) VALUES (?,?,?,?)
    `, id, m.DisplayName, nullIfEmptyStr(m.AvatarURL), now); err != nil {
		return nil, err
	}
	out := *m
	out.UserID = id
	out.CreationTime = now
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	var avatar sql.NullString
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, display_name, avatar_url, creation_time FROM users WHERE user_id = ?
    `, userID)
	if err := row.Scan(&out.UserID, &out.DisplayName, &avatar, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	out.AvatarURL = avatar.String
	return &out, nil
}

// --- Channels ---

type channels struct{ db *sql.DB }

func (c *channels) Create(ctx context.Context, mc *model.Channel) (*model.Channel, error) {
	id := mc.ChannelID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if _, err := c.db.ExecContext(ctx, `
        INSERT INTO channels (channel_id, workspace_id, name, creation_time) VALUES (?,?,?,?)
    `, id, mc.WorkspaceID, mc.Name, now); err != nil {
		return nil, err
	}
	out := *mc
	out.ChannelID = id
	out.CreationTime = now
	return &out, nil
}

func (c *channels) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	var out model.Channel
	row := c.db.QueryRowContext(ctx, `
        SELECT channel_id, workspace_id, name, creation_time FROM channels WHERE channel_id = ?
    `, channelID)
	if err := row.Scan(&out.ChannelID, &out.WorkspaceID, &out.Name, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (c *channels) AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	_, err := c.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO workspace_members (workspace_id, user_id) VALUES (?,?)
    `, workspaceID, userID)
	return err
}

func (c *channels) WorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT user_id FROM workspace_members WHERE workspace_id = ? ORDER BY user_id
    `, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanIDs(rows)
}

// --- DM channels ---

type dmChannels struct{ db *sql.DB }

func (d *dmChannels) Create(ctx context.Context, md *model.DMChannel, memberIDs []string) (*model.DMChannel, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id := md.DMChannelID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO dm_channels (dm_channel_id, creation_time) VALUES (?,?)
    `, id, now); err != nil {
		return nil, err
	}
	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO dm_channel_members (dm_channel_id, user_id) VALUES (?,?)
        `, id, uid); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.DMChannel{DMChannelID: id, CreationTime: now}, nil
}

func (d *dmChannels) MemberIDs(ctx context.Context, dmChannelID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT user_id FROM dm_channel_members WHERE dm_channel_id = ? ORDER BY user_id
    `, dmChannelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanIDs(rows)
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Create(ctx context.Context, mm *model.Message) (*model.Message, error) {
	if !mm.Conversation.Valid() {
		return nil, model.ErrNoConversation
	}
	id := mm.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if _, err := m.db.ExecContext(ctx, `
        INSERT INTO messages (message_id, channel_id, dm_channel_id, sender_id, content, parent_message_id, creation_time)
        VALUES (?,?,?,?,?,?,?)
    `, id, nullIfEmptyStr(mm.Conversation.ChannelID), nullIfEmptyStr(mm.Conversation.DMChannelID),
		mm.SenderID, mm.Content, mm.ParentMessageID, now); err != nil {
		return nil, err
	}
	out := *mm
	out.MessageID = id
	out.CreationTime = now
	return &out, nil
}

func (m *messages) Get(ctx context.Context, messageID string) (*model.Message, error) {
	var out model.Message
	var channelID, dmChannelID, parentID sql.NullString
	var latestReply sql.NullTime
	row := m.db.QueryRowContext(ctx, `
        SELECT message_id, channel_id, dm_channel_id, sender_id, content, parent_message_id,
               reply_count, latest_reply_at, creation_time
        FROM messages WHERE message_id = ?
    `, messageID)
	if err := row.Scan(&out.MessageID, &channelID, &dmChannelID, &out.SenderID, &out.Content,
		&parentID, &out.ReplyCount, &latestReply, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	out.Conversation = model.ConversationRef{ChannelID: channelID.String, DMChannelID: dmChannelID.String}
	if parentID.Valid {
		out.ParentMessageID = &parentID.String
	}
	if latestReply.Valid {
		t := latestReply.Time
		out.LatestReplyAt = &t
	}
	return &out, nil
}

func (m *messages) IncrementReplyCount(ctx context.Context, parentMessageID string, at time.Time) error {
	res, err := m.db.ExecContext(ctx, `
        UPDATE messages SET reply_count = reply_count + 1, latest_reply_at = ? WHERE message_id = ?
    `, at.UTC(), parentMessageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *messages) LatestID(ctx context.Context, conv model.ConversationRef) (string, error) {
	var id string
	var row *sql.Row
	if conv.ChannelID != "" {
		row = m.db.QueryRowContext(ctx, `
            SELECT message_id FROM messages WHERE channel_id = ?
            ORDER BY creation_time DESC, rowid DESC LIMIT 1
        `, conv.ChannelID)
	} else {
		row = m.db.QueryRowContext(ctx, `
            SELECT message_id FROM messages WHERE dm_channel_id = ?
            ORDER BY creation_time DESC, rowid DESC LIMIT 1
        `, conv.DMChannelID)
	}
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// --- Unread counters ---

type counters struct{ db *sql.DB }

func (c *counters) Increment(ctx context.Context, userID string, conv model.ConversationRef, mention bool) error {
	if !conv.Valid() {
		return model.ErrNoConversation
	}
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO unread_counters (user_id, conversation_key, unread_count, has_mention, update_time)
        VALUES (?,?,1,?,?)
        ON CONFLICT (user_id, conversation_key)
        DO UPDATE SET unread_count = unread_count + 1,
                      has_mention  = MAX(has_mention, excluded.has_mention),
                      update_time  = excluded.update_time
    `, userID, conv.Key(), boolInt(mention), time.Now().UTC())
	return err
}

func (c *counters) Reset(ctx context.Context, userID string, conv model.ConversationRef, lastReadMessageID string) error {
	if !conv.Valid() {
		return model.ErrNoConversation
	}
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO unread_counters (user_id, conversation_key, unread_count, has_mention, last_read_message_id, update_time)
        VALUES (?,?,0,0,?,?)
        ON CONFLICT (user_id, conversation_key)
        DO UPDATE SET unread_count = 0,
                      has_mention  = 0,
                      last_read_message_id = excluded.last_read_message_id,
                      update_time  = excluded.update_time
    `, userID, conv.Key(), nullIfEmptyStr(lastReadMessageID), time.Now().UTC())
	return err
}

func (c *counters) Get(ctx context.Context, userID string, conv model.ConversationRef) (*model.UnreadCounter, error) {
	var out model.UnreadCounter
	var key string
	var mention int
	var lastRead sql.NullString
	row := c.db.QueryRowContext(ctx, `
        SELECT user_id, conversation_key, unread_count, has_mention, last_read_message_id, update_time
        FROM unread_counters WHERE user_id = ? AND conversation_key = ?
    `, userID, conv.Key())
	if err := row.Scan(&out.UserID, &key, &out.UnreadCount, &mention, &lastRead, &out.UpdateTime); err != nil {
		return nil, mapNoRows(err)
	}
	out.Conversation = model.ParseConversationKey(key)
	out.HasMention = mention != 0
	if lastRead.Valid {
		out.LastReadMessageID = &lastRead.String
	}
	return &out, nil
}

// --- Ingest jobs ---

type jobs struct{ db *sql.DB }

func (j *jobs) Enqueue(ctx context.Context, messageID, content string) error {
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO ingest_jobs (message_id, content, enqueue_time) VALUES (?,?,?)
    `, messageID, content, time.Now().UTC())
	return err
}

func (j *jobs) Lease(ctx context.Context, n int, visibility time.Duration) ([]*model.IngestJob, error) {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	rows, err := tx.QueryContext(ctx, `
        SELECT job_id, message_id, content, priority, retry_count, enqueue_time
        FROM ingest_jobs
        WHERE leased_until <= ?
        ORDER BY priority DESC, job_id ASC
        LIMIT ?
    `, now.Unix(), n)
	if err != nil {
		return nil, err
	}
	out, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	until := now.Add(visibility).Unix()
	for _, job := range out {
		if _, err := tx.ExecContext(ctx, `
            UPDATE ingest_jobs SET leased_until = ? WHERE job_id = ?
        `, until, job.JobID); err != nil {
			return nil, err
		}
	}
	return out, tx.Commit()
}

func (j *jobs) Ack(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := j.db.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE job_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (j *jobs) Retry(ctx context.Context, id int64, maxRetries int) (bool, error) {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
        UPDATE ingest_jobs
        SET retry_count = retry_count + 1, priority = priority - 1, leased_until = 0
        WHERE job_id = ?
    `, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, model.ErrNotFound
	}

	var retryCount int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM ingest_jobs WHERE job_id = ?`, id).Scan(&retryCount); err != nil {
		return false, err
	}
	dropped := retryCount > maxRetries
	if dropped {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE job_id = ?`, id); err != nil {
			return false, err
		}
	}
	return dropped, tx.Commit()
}

func (j *jobs) Pending(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingest_jobs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// helpers

func scanIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanJobs(rows *sql.Rows) ([]*model.IngestJob, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.IngestJob
	for rows.Next() {
		var job model.IngestJob
		if err := rows.Scan(&job.JobID, &job.MessageID, &job.Content, &job.Priority, &job.RetryCount, &job.EnqueueTime); err != nil {
			return nil, err
		}
		out = append(out, &job)
	}
	return out, rows.Err()
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func nullIfEmptyStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
