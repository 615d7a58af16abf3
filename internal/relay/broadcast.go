package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaschat/internal/metrics"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

// reply sends a frame back on the session's own connection.
func (e *Engine) reply(ctx context.Context, sess *Session, frame any) {
	if err := sess.Client().Send(ctx, frame); err != nil {
		e.logger.Debug("reply dropped",
			zap.String("conn_id", sess.Client().ID()), zap.Error(err))
	}
}

// sendTo pushes frame to the registered session of identity. An offline
// identity is not an error.
func (e *Engine) sendTo(ctx context.Context, identity string, frame any) bool {
	sess, ok := e.registry.Get(identity)
	if !ok {
		e.metrics.Fanout(metrics.FanoutOffline)
		return false
	}
	return e.deliver(ctx, sess, frame)
}

// deliver sends frame to sess. Failures are logged and counted, never retried.
func (e *Engine) deliver(ctx context.Context, sess *Session, frame any) bool {
	if err := sess.Client().Send(ctx, frame); err != nil {
		e.metrics.Fanout(metrics.FanoutFailed)
		e.logger.Warn("fanout failed",
			zap.String("conn_id", sess.Client().ID()),
			zap.String("identity", sess.Identity()),
			zap.Error(err))
		return false
	}
	e.metrics.Fanout(metrics.FanoutDelivered)
	return true
}

// broadcastRoster sends every registered session the list of the other
// online identities.
func (e *Engine) broadcastRoster(ctx context.Context) {
	entries := e.registry.Snapshot()
	for i, entry := range entries {
		others := make([]string, 0, len(entries)-1)
		for j, other := range entries {
			if j != i {
				others = append(others, other.Identity)
			}
		}
		e.deliver(ctx, entry.Session, protocol.NewOnlineUsers(others))
	}
}

// broadcastExcept sends frame to every registered session but the one of except.
func (e *Engine) broadcastExcept(ctx context.Context, except string, frame any) int {
	sent := 0
	for _, entry := range e.registry.Snapshot() {
		if entry.Identity == except {
			continue
		}
		if e.deliver(ctx, entry.Session, frame) {
			sent++
		}
	}
	return sent
}

// AnnounceUser tells every online user except username that a new account
// exists. It returns the number of sessions reached.
func (e *Engine) AnnounceUser(ctx context.Context, username, userID string) (int, error) {
	if username == "" {
		return 0, errors.New("relay: username is required")
	}
	return e.broadcastExcept(ctx, username, protocol.NewNewUser(username, userID)), nil
}
