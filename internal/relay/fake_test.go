package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/presence"
	"github.com/luciancaetano/kephaschat/internal/store"
)

// fakeClient records every frame sent to it.
type fakeClient struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

func newFakeClient(id string) *fakeClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeClient{id: id, ctx: ctx, cancel: cancel}
}

func (c *fakeClient) ID() string                      { return c.id }
func (c *fakeClient) RemoteAddr() string              { return "127.0.0.1:1" }
func (c *fakeClient) Context() context.Context        { return c.ctx }
func (c *fakeClient) Close(ctx context.Context) error { return c.CloseWithCode(ctx, 1000, "") }

func (c *fakeClient) Send(_ context.Context, frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return kephaschat.ErrConnectionClosed
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeClient) CloseWithCode(_ context.Context, code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
		c.cancel()
	}
	return nil
}

func (c *fakeClient) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// frames returns and clears the recorded frames.
func (c *fakeClient) frames(t *testing.T) []map[string]any {
	t.Helper()

	c.mu.Lock()
	sent := c.sent
	c.sent = nil
	c.mu.Unlock()

	out := make([]map[string]any, 0, len(sent))
	for _, data := range sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		out = append(out, m)
	}
	return out
}

func types(frames []map[string]any) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f["type"].(string))
	}
	return out
}

// fakeAuth accepts "token-<name>" for every name in users.
type fakeAuth struct {
	users map[string]string // username -> user id
}

func (a *fakeAuth) VerifyToken(_ context.Context, token string) (kephaschat.Principal, error) {
	if token == "ghost" {
		return kephaschat.Principal{}, kephaschat.ErrUserNotFound
	}
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return kephaschat.Principal{}, kephaschat.ErrInvalidToken
	}
	name := token[len(prefix):]
	id, ok := a.users[name]
	if !ok {
		return kephaschat.Principal{}, kephaschat.ErrUserNotFound
	}
	return kephaschat.Principal{Username: name, UserID: id}, nil
}

// faultyStore fails or panics on demand.
type faultyStore struct {
	*store.Memory
	saveErr   error
	markErr   error
	pinErr    error
	editErr   error
	panicSave bool
}

func (s *faultyStore) SaveMessage(ctx context.Context, msg *kephaschat.Message) error {
	if s.panicSave {
		panic("boom")
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Memory.SaveMessage(ctx, msg)
}

func (s *faultyStore) EditMessage(ctx context.Context, id, by, text string) (*kephaschat.Message, error) {
	if s.editErr != nil {
		return nil, s.editErr
	}
	return s.Memory.EditMessage(ctx, id, by, text)
}

func (s *faultyStore) MarkRead(ctx context.Context, from, to string) ([]string, error) {
	if s.markErr != nil {
		return nil, s.markErr
	}
	return s.Memory.MarkRead(ctx, from, to)
}

func (s *faultyStore) PinMessage(ctx context.Context, pin kephaschat.Pin) error {
	if s.pinErr != nil {
		return s.pinErr
	}
	return s.Memory.PinMessage(ctx, pin)
}

// failingPresence rejects every write.
type failingPresence struct{ err error }

func (p failingPresence) SetWithTTL(context.Context, string, string, time.Duration) error { return p.err }
func (p failingPresence) Delete(context.Context, string) error                            { return p.err }

// gatedPresence holds every Delete until release is closed.
type gatedPresence struct {
	*presence.Memory
	entered chan struct{}
	release chan struct{}
}

func newGatedPresence() *gatedPresence {
	return &gatedPresence{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *gatedPresence) Delete(ctx context.Context, key string) error {
	p.entered <- struct{}{}
	<-p.release
	return p.Memory.Delete(ctx, key)
}

type harness struct {
	engine   *Engine
	store    *faultyStore
	presence *presence.Memory
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		store:    &faultyStore{Memory: store.NewMemory()},
		presence: presence.NewMemory(),
	}
	opts := Options{
		Auth: &fakeAuth{users: map[string]string{
			"alice": "u-alice",
			"bob":   "u-bob",
			"carol": "u-carol",
		}},
		Messages: h.store,
		Presence: h.presence,
	}
	for _, m := range mutate {
		m(&opts)
	}

	e, err := New(opts)
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) connect(id string) *fakeClient {
	c := newFakeClient(id)
	h.engine.OnConnect(c)
	return c
}

func (h *harness) send(c *fakeClient, frame string) {
	h.engine.OnFrame(c, []byte(frame))
}

// login connects and authenticates a client, discarding the frames it got.
func (h *harness) login(t *testing.T, connID, username string) *fakeClient {
	t.Helper()

	c := h.connect(connID)
	h.send(c, `{"type":"auth","token":"token-`+username+`"}`)
	got := c.frames(t)
	require.NotEmpty(t, got)
	require.Equal(t, "auth_success", got[0]["type"])
	return c
}
