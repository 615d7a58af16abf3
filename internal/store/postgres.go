package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/luciancaetano/kephaschat"
)

//go:embed schema.sql
var schema string

const messageColumns = `m.id, m.sender, m.recipient, m.body, m.media_type, m.media_url, m.file_name,
	m.file_size, m.duration, m.waveform, m.reply_to, m.reply_to_text, m.reply_to_sender,
	m.forwarded, m.forwarded_from, m.created_at, m.edited_at,
	EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = m.id AND r.reader = m.recipient)`

// Postgres is a MessageStore backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool for dsn and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables the relay needs if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (p *Postgres) SaveMessage(ctx context.Context, msg *kephaschat.Message) error {
	var (
		mediaType, mediaURL, fileName sql.NullString
		fileSize                      sql.NullInt64
		duration                      sql.NullFloat64
		waveform                      sql.NullString
		replyTo, replyText, replyFrom sql.NullString
	)
	if m := msg.Media; m != nil {
		mediaType = nullString(m.Type)
		mediaURL = nullString(m.URL)
		fileName = nullString(m.FileName)
		fileSize = sql.NullInt64{Int64: m.Size, Valid: m.Size > 0}
		duration = sql.NullFloat64{Float64: m.Duration, Valid: m.Duration > 0}
		// An empty JSONB parameter is rejected by the server, so no waveform binds NULL.
		if len(m.Waveform) > 0 {
			b, err := json.Marshal(m.Waveform)
			if err != nil {
				return fmt.Errorf("encode waveform: %w", err)
			}
			waveform = sql.NullString{String: string(b), Valid: true}
		}
	}
	if r := msg.ReplyTo; r != nil {
		replyTo = nullString(r.MessageID)
		replyText = nullString(r.Text)
		replyFrom = nullString(r.Sender)
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender, recipient, body, media_type, media_url, file_name,
			file_size, duration, waveform, reply_to, reply_to_text, reply_to_sender,
			forwarded, forwarded_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		msg.ID, msg.From, msg.To, msg.Text, mediaType, mediaURL, fileName,
		fileSize, duration, waveform, replyTo, replyText, replyFrom,
		msg.Forwarded, nullString(msg.ForwardedFrom), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*kephaschat.Message, error) {
	var (
		msg                           kephaschat.Message
		mediaType, mediaURL, fileName sql.NullString
		fileSize                      sql.NullInt64
		duration                      sql.NullFloat64
		waveform                      []byte
		replyTo, replyText, replyFrom sql.NullString
		forwardedFrom                 sql.NullString
		editedAt                      sql.NullTime
	)
	err := row.Scan(&msg.ID, &msg.From, &msg.To, &msg.Text, &mediaType, &mediaURL, &fileName,
		&fileSize, &duration, &waveform, &replyTo, &replyText, &replyFrom,
		&msg.Forwarded, &forwardedFrom, &msg.CreatedAt, &editedAt, &msg.Read)
	if err != nil {
		return nil, err
	}

	if mediaURL.Valid {
		msg.Media = &kephaschat.Media{
			Type:     mediaType.String,
			URL:      mediaURL.String,
			FileName: fileName.String,
			Size:     fileSize.Int64,
			Duration: duration.Float64,
		}
		if len(waveform) > 0 {
			if err := json.Unmarshal(waveform, &msg.Media.Waveform); err != nil {
				return nil, fmt.Errorf("decode waveform: %w", err)
			}
		}
	}
	if replyTo.Valid {
		msg.ReplyTo = &kephaschat.ReplyRef{MessageID: replyTo.String, Text: replyText.String, Sender: replyFrom.String}
	}
	msg.ForwardedFrom = forwardedFrom.String
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	return &msg, nil
}

func (p *Postgres) EditMessage(ctx context.Context, id, by, text string) (*kephaschat.Message, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE messages m SET body = $3, edited_at = now()
		WHERE m.id = $1 AND m.sender = $2
		RETURNING `+messageColumns, id, by, text)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edit message %s: %w", id, kephaschat.ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("edit message %s: %w", id, err)
	}
	return msg, nil
}

func (p *Postgres) DeleteMessage(ctx context.Context, id, by string) (*kephaschat.Message, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete message %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m
		WHERE m.id = $1 AND m.sender = $2 FOR UPDATE`, id, by)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delete message %s: %w", id, kephaschat.ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete message %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete message %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete message %s: %w", id, err)
	}
	return msg, nil
}

func (p *Postgres) MarkRead(ctx context.Context, from, to string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		INSERT INTO read_receipts (message_id, reader, read_at)
		SELECT m.id, $2, now() FROM messages m
		WHERE m.sender = $1 AND m.recipient = $2
			AND NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = m.id AND r.reader = $2)
		ORDER BY m.created_at
		ON CONFLICT (message_id, reader) DO NOTHING
		RETURNING message_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("mark read %s->%s: %w", from, to, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mark read %s->%s: %w", from, to, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read %s->%s: %w", from, to, err)
	}
	return ids, nil
}

func (p *Postgres) PinMessage(ctx context.Context, pin kephaschat.Pin) error {
	conv := conversationOf(pin.PinnedBy, pin.Peer)
	if pin.PinnedAt.IsZero() {
		pin.PinnedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pinned_messages (user_a, user_b, pinned_by, message_id, message_text, pinned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_a, user_b) DO UPDATE
		SET pinned_by = EXCLUDED.pinned_by, message_id = EXCLUDED.message_id,
			message_text = EXCLUDED.message_text, pinned_at = EXCLUDED.pinned_at`,
		conv[0], conv[1], pin.PinnedBy, pin.MessageID, pin.MessageText, pin.PinnedAt)
	if err != nil {
		return fmt.Errorf("pin message %s: %w", pin.MessageID, err)
	}
	return nil
}

func (p *Postgres) UnpinMessage(ctx context.Context, by, peer string) error {
	conv := conversationOf(by, peer)
	if _, err := p.db.ExecContext(ctx, `DELETE FROM pinned_messages WHERE user_a = $1 AND user_b = $2`, conv[0], conv[1]); err != nil {
		return fmt.Errorf("unpin %s/%s: %w", by, peer, err)
	}
	return nil
}

func (p *Postgres) PinnedMessages(ctx context.Context, identity string) (map[string]kephaschat.Pin, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_a, user_b, pinned_by, message_id, message_text, pinned_at
		FROM pinned_messages WHERE user_a = $1 OR user_b = $1`, identity)
	if err != nil {
		return nil, fmt.Errorf("pinned messages for %s: %w", identity, err)
	}
	defer rows.Close()

	out := make(map[string]kephaschat.Pin)
	for rows.Next() {
		var a, b string
		var pin kephaschat.Pin
		if err := rows.Scan(&a, &b, &pin.PinnedBy, &pin.MessageID, &pin.MessageText, &pin.PinnedAt); err != nil {
			return nil, fmt.Errorf("pinned messages for %s: %w", identity, err)
		}
		pin.Peer = a
		if pin.PinnedBy == a {
			pin.Peer = b
		}
		peer := a
		if a == identity {
			peer = b
		}
		out[peer] = pin
	}
	return out, rows.Err()
}

// LookupUser returns the user id registered for username.
func (p *Postgres) LookupUser(ctx context.Context, username string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup %s: %w", username, kephaschat.ErrUserNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", username, err)
	}
	return id, nil
}
