package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/logging"
	"github.com/luciancaetano/kephaschat/internal/metrics"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr            string
	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn

	// MaxFrameBytes caps inbound frames; larger frames close the connection
	// with 1009. Zero means defaultMaxFrameBytes.
	MaxFrameBytes int64

	// Handler receives connection lifecycle events and inbound frames.
	Handler kephaschat.FrameHandler

	// Routes mounts extra HTTP routes next to /ws. Optional.
	Routes func(r chi.Router)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

const defaultMaxFrameBytes = 64 * 1024

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 frames per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server implements the kephaschat.WebsocketServer interface
type Server struct {
	addr    string
	server  *http.Server
	router  chi.Router
	clients sync.Map // map[string]*Client

	handler         kephaschat.FrameHandler
	rateLimitConfig *RateLimitConfig
	maxFrameBytes   int64
	logger          *zap.Logger
	metrics         *metrics.Metrics

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
	wg       sync.WaitGroup // connection goroutines
}

// New creates a new WebSocket server instance with the specified configuration.
//
// The server uses the Gorilla WebSocket library with read/write buffer sizes of 1024 bytes.
// Rate limiting is applied per-client using a token bucket algorithm.
// If cfg.RateLimitConfig is nil, DefaultRateLimitConfig() is used.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	if cfg.Handler == nil {
		cfg.Handler = nopHandler{}
	}
	cfg.Logger = logging.OrNop(cfg.Logger)

	s := &Server{
		addr:            cfg.Addr,
		handler:         cfg.Handler,
		rateLimitConfig: cfg.RateLimitConfig,
		maxFrameBytes:   cfg.MaxFrameBytes,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	if cfg.Routes != nil {
		cfg.Routes(r)
	}
	s.router = r

	return s
}

// Handler returns the HTTP handler serving /ws and the extra routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(kephaschat.ErrServerAlreadyRunning)
	}
	s.running = true
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
		// Context cancelled, stop the server
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully, no immediate errors
		s.logger.Info("websocket server listening", zap.String("addr", s.addr))
		return nil
	}
}

// Stop stops the WebSocket server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	// Stop accepting before closing the remaining connections
	var shutdownErr error
	if srv != nil {
		shutdownErr = srv.Shutdown(ctx)
	}

	s.logger.Info("closing connections", zap.Int("clients", s.ClientCount()))
	s.CloseAll(ctx, websocket.CloseGoingAway, "Server shutting down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if shutdownErr == nil {
			shutdownErr = ctx.Err()
		}
	}

	return shutdownErr
}

// CloseAll closes every connected client with the given code.
func (s *Server) CloseAll(ctx context.Context, code int, reason string) {
	s.clients.Range(func(_, value any) bool {
		if client, ok := value.(*Client); ok {
			_ = client.CloseWithCode(ctx, code, reason)
		}
		return true
	})
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig, s.logger)
	s.clients.Store(client.ID(), client)
	s.metrics.ConnectionOpened()

	// Start reading frames from client
	s.wg.Add(1)
	go s.handleClient(client)
}

// handleClient runs the read loop of a connected client. Frames are handed to
// the FrameHandler one at a time, in arrival order.
func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.handler.OnDisconnect(client)
		s.clients.Delete(client.ID())
		_ = client.Close(context.Background())
		s.metrics.ConnectionClosed()
		client.logger.Debug("client disconnected")
	}()

	client.conn.SetReadLimit(s.maxFrameBytes)

	// Set read deadline to prevent indefinite blocking
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

	// Set pong handler to reset read deadline on pong
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	client.logger.Debug("client connected")
	s.handler.OnConnect(client)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				client.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}

		// Reset read deadline after successful read
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Check rate limit before processing the frame
		if !client.CheckRateLimit() {
			client.logger.Warn("rate limit exceeded")
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			_ = client.CloseWithCode(ctx, websocket.ClosePolicyViolation, "Rate limit exceeded")
			cancel()
			return
		}

		s.handler.OnFrame(client, data)
	}
}

type nopHandler struct{}

func (nopHandler) OnConnect(kephaschat.Client)       {}
func (nopHandler) OnFrame(kephaschat.Client, []byte) {}
func (nopHandler) OnDisconnect(kephaschat.Client)    {}
