package relay

import (
	"sync"

	"github.com/luciancaetano/kephaschat"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection state owned by the Engine. The registry holds
// *Session values and compares them by pointer.
type Session struct {
	client kephaschat.Client

	mu       sync.Mutex
	state    State
	identity string
	userID   string
}

func newSession(client kephaschat.Client) *Session {
	return &Session{client: client, state: StateConnected}
}

// Client returns the connection behind the session.
func (s *Session) Client() kephaschat.Client {
	return s.client
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the authenticated username, or "" before auth.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// authenticate binds p to the session. It fails unless the session is still
// Connected.
func (s *Session) authenticate(p kephaschat.Principal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return false
	}
	s.state = StateAuthenticated
	s.identity = p.Username
	s.userID = p.UserID
	return true
}

// close moves the session to Closed. It reports the bound identity only on
// the first call for a session that was authenticated.
func (s *Session) close() (identity string, wasAuthenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = StateClosed
	return s.identity, prev == StateAuthenticated
}
