package websocket

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaschat"
)

// TestClientIdentity tests that clients get distinct UUID identifiers
func TestClientIdentity(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	_, url := newTestServer(t, &ServerConfig{Handler: h})

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		dial(t, url)
		client := waitClient(t, h.connected)

		if _, err := uuid.Parse(client.ID()); err != nil {
			t.Errorf("ID %s is not a valid UUID: %v", client.ID(), err)
		}
		if ids[client.ID()] {
			t.Errorf("duplicate ID: %s", client.ID())
		}
		ids[client.ID()] = true

		if client.RemoteAddr() == "" {
			t.Error("RemoteAddr() is empty")
		}
	}
}

// TestClientSendQueueFull tests that Send never blocks on a full queue
func TestClientSendQueueFull(t *testing.T) {
	t.Parallel()

	// No write pump drains this client
	c := &Client{sendCh: make(chan []byte, 2)}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.Send(ctx, map[string]int{"n": i}); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, map[string]int{"n": 2}) }()

	select {
	case err := <-done:
		if !errors.Is(err, kephaschat.ErrSendQueueFull) {
			t.Errorf("Send on full queue error = %v, want ErrSendQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
}

// TestClientSendErrors tests encode and context failures
func TestClientSendErrors(t *testing.T) {
	t.Parallel()

	c := &Client{sendCh: make(chan []byte, 1)}

	if err := c.Send(context.Background(), math.Inf(1)); err == nil {
		t.Error("expected encode error for +Inf")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Send(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send with cancelled ctx error = %v, want context.Canceled", err)
	}

	c.closed = true
	if err := c.Send(context.Background(), "x"); !errors.Is(err, kephaschat.ErrConnectionClosed) {
		t.Errorf("Send on closed client error = %v, want ErrConnectionClosed", err)
	}
}

// TestClientCheckRateLimit tests the per-client token bucket
func TestClientCheckRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limiter *rate.Limiter
		allowed int
	}{
		{name: "disabled", limiter: nil, allowed: 10},
		{name: "burst of three", limiter: rate.NewLimiter(rate.Every(time.Hour), 3), allowed: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &Client{rateLimiter: tt.limiter}
			got := 0
			for i := 0; i < 10; i++ {
				if c.CheckRateLimit() {
					got++
				}
			}
			if got != tt.allowed {
				t.Errorf("allowed %d frames, want %d", got, tt.allowed)
			}
		})
	}
}

// TestClientCloseIdempotent tests repeated closes and IsAlive
func TestClientCloseIdempotent(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	h.onFrame = func(kephaschat.Client, []byte) {}
	_, url := newTestServer(t, &ServerConfig{Handler: h})
	conn := dial(t, url)
	client := waitClient(t, h.connected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsAlive() {
		t.Error("IsAlive() = true after Close")
	}
	if err := client.CloseWithCode(ctx, websocket.ClosePolicyViolation, "again"); err != nil {
		t.Errorf("second close error = %v", err)
	}

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("expected normal close, got %v", err)
	}
	waitClient(t, h.disconnected)
}
