package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/logging"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Control pings are sent with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 256
)

// Client implements the kephaschat.Client interface
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	done        chan struct{} // closed when the write pump exits
	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
	rateLimiter *rate.Limiter // Rate limiter for incoming frames
	logger      *zap.Logger
}

// NewClient creates a new WebSocket client with rate limiting
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	id := uuid.New().String()
	logger = logging.OrNop(logger)

	client := &Client{
		id:          id,
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		closeCode:   websocket.CloseNormalClosure,
		rateLimiter: limiter,
		logger:      logger.With(zap.String("client_id", id), zap.String("remote_addr", remoteAddr)),
	}

	// Start the write pump
	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send encodes frame as JSON and queues it on the write pump without blocking.
func (c *Client) Send(ctx context.Context, frame any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Encode before acquiring the lock
	data, err := protocol.Encode(frame)
	if err != nil {
		return fmt.Errorf("%s: %w", kephaschat.ErrFailedToEncode, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Holding the read lock keeps Close from closing sendCh under us
	if c.closed {
		return kephaschat.ErrConnectionClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return kephaschat.ErrSendQueueFull
	}
}

// Close closes the client connection
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode stops accepting frames, lets the write pump flush what is
// already queued, then writes the close frame and closes the connection.
// It waits for the flush until ctx is done.
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.sendCh)
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		// Give up on the flush
		_ = c.conn.Close()
		return ctx.Err()
	}
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit checks if the client has exceeded the rate limit
// Returns true if the frame is allowed, false if rate limited
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump pumps frames from the send channel to the websocket connection.
// It is the only goroutine writing data frames to conn.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.markClosed()
		c.cancel()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, queue drained
				c.mu.RLock()
				code, reason := c.closeCode, c.closeReason
				c.mu.RUnlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// markClosed rejects further sends after the write pump died on its own.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
}
