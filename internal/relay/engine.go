// Package relay is the connection-state and fanout engine of the chat server.
//
// An Engine is the kephaschat.FrameHandler plugged into the WebSocket server.
// It turns anonymous connections into authenticated sessions, keeps the
// identity registry, routes inbound frames to their handlers and fans
// messages and presence notifications out to live sessions. Delivery is
// at-most-once and best-effort: an offline or slow recipient simply misses
// the push.
package relay

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/logging"
	"github.com/luciancaetano/kephaschat/internal/metrics"
	"github.com/luciancaetano/kephaschat/internal/registry"
)

const (
	DefaultOnlineTTL    = 5 * time.Minute
	DefaultTypingTTL    = 5 * time.Second
	DefaultPingInterval = 30 * time.Second

	// Upper bound on flushing an auth_error before the close frame.
	closeTimeout = 5 * time.Second

	closePolicyViolation = 1008
)

// Options configures an Engine. Auth, Messages and Presence are required.
type Options struct {
	Auth     kephaschat.Authenticator
	Messages kephaschat.MessageStore
	Presence kephaschat.PresenceStore

	OnlineTTL    time.Duration
	TypingTTL    time.Duration
	PingInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Now is the clock for message timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Engine implements kephaschat.FrameHandler.
type Engine struct {
	auth     kephaschat.Authenticator
	messages kephaschat.MessageStore
	presence kephaschat.PresenceStore

	onlineTTL    time.Duration
	typingTTL    time.Duration
	pingInterval time.Duration

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	registry *registry.Registry[*Session]
	routes   map[string]HandlerFunc

	mu       sync.Mutex
	sessions map[string]*Session // by connection id

	markerLocks [64]sync.Mutex
}

var _ kephaschat.FrameHandler = (*Engine)(nil)

// New creates an Engine with the frame handlers registered.
func New(opts Options) (*Engine, error) {
	if opts.Auth == nil {
		return nil, errors.New("relay: authenticator is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("relay: message store is required")
	}
	if opts.Presence == nil {
		return nil, errors.New("relay: presence store is required")
	}
	if opts.OnlineTTL <= 0 {
		opts.OnlineTTL = DefaultOnlineTTL
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		auth:         opts.Auth,
		messages:     opts.Messages,
		presence:     opts.Presence,
		onlineTTL:    opts.OnlineTTL,
		typingTTL:    opts.TypingTTL,
		pingInterval: opts.PingInterval,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
		registry:     registry.New[*Session](),
		routes:       make(map[string]HandlerFunc),
		sessions:     make(map[string]*Session),
	}
	e.registerRoutes()

	return e, nil
}

// Online returns the identities with a registered session, sorted.
func (e *Engine) Online() []string {
	return e.registry.Identities()
}

// SessionFor returns the registered session of identity.
func (e *Engine) SessionFor(identity string) (*Session, bool) {
	return e.registry.Get(identity)
}

// Connections returns the number of open connections, authenticated or not.
func (e *Engine) Connections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
