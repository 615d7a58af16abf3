// Package ws is the public constructor surface of the relay's WebSocket
// server.
package ws

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type ServerConfig = *websocket.ServerConfig

// New creates a new WebSocket server that hands every connection to the
// configured FrameHandler.
//
// Example:
//
//	engine, _ := relay.New(relay.Options{Auth: auth, Messages: store, Presence: presence})
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), engine))
//	server.Start(ctx)
func New(cfg ServerConfig) kephaschat.WebsocketServer {
	return websocket.New(cfg)
}

// NewConfig builds a ServerConfig. Logger, metrics, frame size and extra
// routes can be set on the returned value before calling New.
func NewConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, handler kephaschat.FrameHandler) ServerConfig {
	return &websocket.ServerConfig{
		Addr:            addr,
		RateLimitConfig: rateLimitConfig,
		CheckOrigin:     checkOrigin,
		Handler:         handler,
	}
}

// WithRoutes mounts extra HTTP routes next to /ws.
func WithRoutes(cfg ServerConfig, routes func(r chi.Router)) ServerConfig {
	cfg.Routes = routes
	return cfg
}

// AllOrigins returns the checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
