package kephaschat

import (
	"context"
	"net/http"
	"time"
)

// WebsocketServer defines the interface for the relay's WebSocket server.
//
// All frames exchanged between the server and clients are JSON text messages
// carrying a "type" discriminator. The server owns the transport (upgrade,
// read loop, write pump, keepalive) and hands every inbound frame to a
// FrameHandler.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephaschat/ws"
//
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), engine))
//	server.Start(ctx)
type WebsocketServer interface {
	// Start starts the WebSocket server and begins listening for connections.
	// The server will continue running until Stop is called or the context is cancelled.
	//
	// Returns an error if the server is already running or if there's a problem
	// binding to the network address.
	Start(ctx context.Context) error

	// Stop gracefully stops the WebSocket server and closes all client connections.
	Stop(ctx context.Context) error

	// Handler returns the HTTP handler serving /ws and any extra routes.
	// Useful for mounting the server under httptest.
	Handler() http.Handler
}

// Client represents a connected WebSocket client.
//
// Each client has a unique identifier and maintains its own connection state.
// The client's context is automatically cancelled when the connection closes.
type Client interface {
	// ID returns a unique identifier for the connection. It is not the
	// authenticated identity of the user behind it.
	ID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context returns the client's lifecycle context.
	//
	// This context is automatically cancelled when the connection closes.
	Context() context.Context

	// Send encodes frame as JSON and queues it for delivery.
	//
	// Send never blocks on a slow peer: when the send queue is full it returns
	// ErrSendQueueFull. Returns ErrConnectionClosed once the client is closed.
	Send(ctx context.Context, frame any) error

	// Close closes the client connection gracefully.
	//
	// This is equivalent to calling CloseWithCode with websocket.CloseNormalClosure.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific WebSocket close code and optional reason.
	// Frames queued before the call are flushed before the close frame is written.
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true if the connection is still active.
	IsAlive() bool
}

// FrameHandler receives the lifecycle events of every connection accepted by
// a WebsocketServer.
//
// OnFrame is invoked sequentially from the connection's read loop, so frames
// from one connection are handled in the order they were received.
type FrameHandler interface {
	OnConnect(client Client)
	OnFrame(client Client, data []byte)
	OnDisconnect(client Client)
}

// Principal is the result of a successful token verification.
type Principal struct {
	Username string
	UserID   string
}

// Authenticator exchanges an auth token for the identity behind it.
//
// Implementations return ErrInvalidToken or ErrUserNotFound (possibly wrapped).
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (Principal, error)
}

// MessageStore is the durable storage for messages, read receipts and pins.
type MessageStore interface {
	// SaveMessage persists a new message. The message ID is assigned by the caller.
	SaveMessage(ctx context.Context, msg *Message) error

	// EditMessage replaces the text of a message sent by `by`. Returns
	// ErrMessageNotFound if no such message exists or `by` is not its sender.
	EditMessage(ctx context.Context, id, by, text string) (*Message, error)

	// DeleteMessage removes a message sent by `by` and returns it.
	DeleteMessage(ctx context.Context, id, by string) (*Message, error)

	// MarkRead records read receipts for every message from `from` to `to`
	// that has none yet, and returns the ids that were receipted by this call.
	MarkRead(ctx context.Context, from, to string) ([]string, error)

	// PinMessage sets the pinned message of the conversation between
	// pin.PinnedBy and pin.Peer, replacing any earlier pin.
	PinMessage(ctx context.Context, pin Pin) error

	// UnpinMessage clears the pin of the conversation between by and peer.
	UnpinMessage(ctx context.Context, by, peer string) error

	// PinnedMessages returns the pins of every conversation identity takes
	// part in, keyed by the other participant.
	PinnedMessages(ctx context.Context, identity string) (map[string]Pin, error)
}

// PresenceStore is a key-value store with per-key expiry.
type PresenceStore interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
