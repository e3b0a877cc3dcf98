package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users           { return &users{db: s.db} }
func (s *pgStore) Channels() store.Channels     { return &channels{db: s.db} }
func (s *pgStore) DMChannels() store.DMChannels { return &dmChannels{db: s.db} }
func (s *pgStore) Messages() store.Messages     { return &messages{db: s.db} }
func (s *pgStore) Counters() store.Counters     { return &counters{db: s.db} }
func (s *pgStore) Jobs() store.Jobs             { return &jobs{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	id := m.UserID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, display_name, avatar_url)
        VALUES ($1,$2,$3)
        RETURNING creation_time
    `, id, m.DisplayName, nullIfEmptyStr(m.AvatarURL))
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.UserID = id
	out.CreationTime = created
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	var avatar sql.NullString
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, display_name, avatar_url, creation_time
        FROM users WHERE user_id=$1
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
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO channels (channel_id, workspace_id, name)
        VALUES ($1,$2,$3)
        RETURNING creation_time
    `, id, mc.WorkspaceID, mc.Name)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *mc
	out.ChannelID = id
	out.CreationTime = created
	return &out, nil
}

func (c *channels) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	var out model.Channel
	row := c.db.QueryRowContext(ctx, `
        SELECT channel_id, workspace_id, name, creation_time
        FROM channels WHERE channel_id=$1
    `, channelID)
	if err := row.Scan(&out.ChannelID, &out.WorkspaceID, &out.Name, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (c *channels) AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO workspace_members (workspace_id, user_id)
        VALUES ($1,$2)
        ON CONFLICT (workspace_id, user_id) DO NOTHING
    `, workspaceID, userID)
	return err
}

func (c *channels) WorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT user_id FROM workspace_members WHERE workspace_id=$1 ORDER BY user_id
    `, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO dm_channels (dm_channel_id)
        VALUES ($1)
        RETURNING creation_time
    `, id)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO dm_channel_members (dm_channel_id, user_id)
            VALUES ($1,$2)
            ON CONFLICT (dm_channel_id, user_id) DO NOTHING
        `, id, uid); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.DMChannel{DMChannelID: id, CreationTime: created}, nil
}

func (d *dmChannels) MemberIDs(ctx context.Context, dmChannelID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT user_id FROM dm_channel_members WHERE dm_channel_id=$1 ORDER BY user_id
    `, dmChannelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, channel_id, dm_channel_id, sender_id, content, parent_message_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING creation_time
    `, id, nullIfEmptyStr(mm.Conversation.ChannelID), nullIfEmptyStr(mm.Conversation.DMChannelID),
		mm.SenderID, mm.Content, mm.ParentMessageID)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *mm
	out.MessageID = id
	out.CreationTime = created
	return &out, nil
}

func (m *messages) Get(ctx context.Context, messageID string) (*model.Message, error) {
	var out model.Message
	var channelID, dmChannelID, parentID sql.NullString
	var latestReply sql.NullTime
	row := m.db.QueryRowContext(ctx, `
        SELECT message_id, channel_id, dm_channel_id, sender_id, content, parent_message_id,
               reply_count, latest_reply_at, creation_time
        FROM messages WHERE message_id=$1
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
        UPDATE messages SET reply_count = reply_count + 1, latest_reply_at = $2
        WHERE message_id=$1
    `, parentMessageID, at)
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
            SELECT message_id FROM messages WHERE channel_id=$1
            ORDER BY creation_time DESC, message_id DESC LIMIT 1
        `, conv.ChannelID)
	} else {
		row = m.db.QueryRowContext(ctx, `
            SELECT message_id FROM messages WHERE dm_channel_id=$1
            ORDER BY creation_time DESC, message_id DESC LIMIT 1
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
	// Single-statement upsert: concurrent senders must not lose updates.
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO unread_counters (user_id, conversation_key, unread_count, has_mention)
        VALUES ($1,$2,1,$3)
        ON CONFLICT (user_id, conversation_key)
        DO UPDATE SET unread_count = unread_counters.unread_count + 1,
                      has_mention  = unread_counters.has_mention OR EXCLUDED.has_mention,
                      update_time  = now()
    `, userID, conv.Key(), mention)
	return err
}

func (c *counters) Reset(ctx context.Context, userID string, conv model.ConversationRef, lastReadMessageID string) error {
	if !conv.Valid() {
		return model.ErrNoConversation
	}
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO unread_counters (user_id, conversation_key, unread_count, has_mention, last_read_message_id)
        VALUES ($1,$2,0,FALSE,$3)
        ON CONFLICT (user_id, conversation_key)
        DO UPDATE SET unread_count = 0,
                      has_mention  = FALSE,
                      last_read_message_id = EXCLUDED.last_read_message_id,
                      update_time  = now()
    `, userID, conv.Key(), nullIfEmptyStr(lastReadMessageID))
	return err
}

func (c *counters) Get(ctx context.Context, userID string, conv model.ConversationRef) (*model.UnreadCounter, error) {
	var out model.UnreadCounter
	var key string
	var lastRead sql.NullString
	row := c.db.QueryRowContext(ctx, `
        SELECT user_id, conversation_key, unread_count, has_mention, last_read_message_id, update_time
        FROM unread_counters WHERE user_id=$1 AND conversation_key=$2
    `, userID, conv.Key())
	if err := row.Scan(&out.UserID, &key, &out.UnreadCount, &out.HasMention, &lastRead, &out.UpdateTime); err != nil {
		return nil, mapNoRows(err)
	}
	out.Conversation = model.ParseConversationKey(key)
	if lastRead.Valid {
		out.LastReadMessageID = &lastRead.String
	}
	return &out, nil
}

// --- Ingest jobs (durable embedding queue) ---

type jobs struct{ db *sql.DB }

func (j *jobs) Enqueue(ctx context.Context, messageID, content string) error {
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO ingest_jobs (message_id, content) VALUES ($1,$2)
    `, messageID, content)
	return err
}

func (j *jobs) Lease(ctx context.Context, n int, visibility time.Duration) ([]*model.IngestJob, error) {
	// SKIP LOCKED keeps concurrent workers from leasing the same rows.
	rows, err := j.db.QueryContext(ctx, `
        UPDATE ingest_jobs SET leased_until = now() + make_interval(secs => $2)
        WHERE job_id IN (
            SELECT job_id FROM ingest_jobs
            WHERE leased_until <= now()
            ORDER BY priority DESC, job_id ASC
            FOR UPDATE SKIP LOCKED
            LIMIT $1
        )
        RETURNING job_id, message_id, content, priority, retry_count, enqueue_time
    `, n, visibility.Seconds())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	sortJobs(out)
	return out, nil
}

func (j *jobs) Ack(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := j.db.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE job_id=$1`, id); err != nil {
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

	var retryCount int
	row := tx.QueryRowContext(ctx, `
        UPDATE ingest_jobs
        SET retry_count = retry_count + 1,
            priority    = priority - 1,
            leased_until = 'epoch'
        WHERE job_id=$1
        RETURNING retry_count
    `, id)
	if err := row.Scan(&retryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, model.ErrNotFound
		}
		return false, err
	}

	dropped := retryCount > maxRetries
	if dropped {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE job_id=$1`, id); err != nil {
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

func scanJobs(rows *sql.Rows) ([]*model.IngestJob, error) {
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

// sortJobs restores priority-desc, enqueue-order ordering; UPDATE..RETURNING
// does not preserve the subquery order.
func sortJobs(jobs []*model.IngestJob) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0 && less(jobs[k], jobs[k-1]); k-- {
			jobs[k], jobs[k-1] = jobs[k-1], jobs[k]
		}
	}
}

func less(a, b *model.IngestJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.JobID < b.JobID
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
