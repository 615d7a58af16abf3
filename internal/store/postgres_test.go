package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephaschat"
)

// recordingConnector hands out connections that keep the arguments of every
// Exec instead of talking to a server.
type recordingConnector struct {
	mu   sync.Mutex
	args [][]driver.NamedValue
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) {
	return &recordingConn{c: c}, nil
}

func (c *recordingConnector) Driver() driver.Driver { return nil }

func (c *recordingConnector) last(t *testing.T) []driver.NamedValue {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.args)
	return c.args[len(c.args)-1]
}

type recordingConn struct {
	c *recordingConnector
}

func (rc *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (rc *recordingConn) Close() error { return nil }

func (rc *recordingConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (rc *recordingConn) ExecContext(_ context.Context, _ string, args []driver.NamedValue) (driver.Result, error) {
	rc.c.mu.Lock()
	rc.c.args = append(rc.c.args, args)
	rc.c.mu.Unlock()
	return driver.RowsAffected(1), nil
}

// TestPostgresSaveMessageParams tests the values bound for optional columns
func TestPostgresSaveMessageParams(t *testing.T) {
	t.Parallel()

	const (
		mediaTypeArg = 4
		waveformArg  = 9
		replyToArg   = 10
	)

	tests := []struct {
		name         string
		msg          *kephaschat.Message
		wantWaveform driver.Value
		wantMedia    driver.Value
		wantReplyTo  driver.Value
	}{
		{
			name: "text only",
			msg:  &kephaschat.Message{ID: "m1", From: "alice", To: "bob", Text: "hi"},
		},
		{
			name: "media without waveform",
			msg: &kephaschat.Message{ID: "m2", From: "alice", To: "bob",
				Media: &kephaschat.Media{Type: "image", URL: "https://cdn.example/a.png"}},
			wantMedia: "image",
		},
		{
			name: "voice note",
			msg: &kephaschat.Message{ID: "m3", From: "alice", To: "bob",
				Media: &kephaschat.Media{Type: "audio", URL: "https://cdn.example/a.ogg", Waveform: []float64{0.1, 0.5}}},
			wantWaveform: "[0.1,0.5]",
			wantMedia:    "audio",
		},
		{
			name: "reply",
			msg: &kephaschat.Message{ID: "m4", From: "bob", To: "alice", Text: "yes",
				ReplyTo: &kephaschat.ReplyRef{MessageID: "m1", Text: "hi", Sender: "alice"}},
			wantReplyTo: "m1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := &recordingConnector{}
			db := sql.OpenDB(conn)
			t.Cleanup(func() { _ = db.Close() })

			tt.msg.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, NewPostgres(db).SaveMessage(context.Background(), tt.msg))

			args := conn.last(t)
			require.Len(t, args, 16)
			assert.Equal(t, tt.wantWaveform, args[waveformArg].Value, "waveform")
			assert.Equal(t, tt.wantMedia, args[mediaTypeArg].Value, "media type")
			assert.Equal(t, tt.wantReplyTo, args[replyToArg].Value, "reply to")
		})
	}
}
