package relay

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/presence"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

// OnConnect creates the Connected session of a new connection.
func (e *Engine) OnConnect(client kephaschat.Client) {
	e.mu.Lock()
	e.sessions[client.ID()] = newSession(client)
	e.mu.Unlock()

	e.logger.Debug("connection opened",
		zap.String("conn_id", client.ID()), zap.String("remote_addr", client.RemoteAddr()))
}

// OnFrame handles one inbound frame. The transport calls it sequentially per
// connection.
func (e *Engine) OnFrame(client kephaschat.Client, data []byte) {
	sess := e.sessionOf(client)
	ctx := context.WithoutCancel(client.Context())

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame handler panicked",
				zap.String("conn_id", client.ID()),
				zap.String("identity", sess.Identity()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInternal))
		}
	}()

	env, err := protocol.Decode(data)
	if err != nil {
		e.metrics.FrameReceived("", false)
		e.logger.Debug("malformed frame", zap.String("conn_id", client.ID()), zap.Error(err))
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}

	e.dispatch(ctx, sess, env)
}

// OnDisconnect closes the session of client. Only the registered session of
// an identity clears its presence and triggers a roster broadcast; a session
// that was replaced by a newer login leaves both to its successor.
func (e *Engine) OnDisconnect(client kephaschat.Client) {
	e.mu.Lock()
	sess, ok := e.sessions[client.ID()]
	delete(e.sessions, client.ID())
	e.mu.Unlock()
	if !ok {
		return
	}

	identity, wasAuthenticated := sess.close()
	if !wasAuthenticated {
		return
	}

	logger := e.logger.With(zap.String("conn_id", client.ID()), zap.String("identity", identity))
	ctx := context.WithoutCancel(client.Context())

	unlock := e.lockMarker(identity)
	if !e.registry.Remove(identity, sess) {
		unlock()
		logger.Debug("replaced session closed")
		return
	}
	if err := e.presence.Delete(ctx, presence.OnlineKey(identity)); err != nil {
		logger.Warn("clear online marker", zap.Error(err))
	}
	unlock()

	e.metrics.SetSessionsOnline(e.registry.Len())
	logger.Info("user offline")
	e.broadcastRoster(ctx)
}

// sessionOf returns the session of client, creating it if the transport
// skipped OnConnect.
func (e *Engine) sessionOf(client kephaschat.Client) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[client.ID()]
	if !ok {
		sess = newSession(client)
		e.sessions[client.ID()] = sess
	}
	return sess
}

func (e *Engine) handleAuth(ctx context.Context, sess *Session, env protocol.Envelope) {
	if sess.State() == StateAuthenticated {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgAlreadyAuthenticated))
		return
	}

	f, err := decode[protocol.AuthFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}

	client := sess.Client()
	principal, err := e.auth.VerifyToken(ctx, f.Token)
	if err != nil {
		msg, reason := kephaschat.ErrMsgInvalidToken, "invalid_token"
		if errors.Is(err, kephaschat.ErrUserNotFound) {
			msg, reason = kephaschat.ErrMsgUserNotFound, "user_not_found"
		}
		e.metrics.AuthFailure(reason)
		e.logger.Info("auth rejected",
			zap.String("conn_id", client.ID()), zap.String("reason", reason), zap.Error(err))

		e.reply(ctx, sess, protocol.NewAuthError(msg))
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()
		if err := client.CloseWithCode(closeCtx, closePolicyViolation, msg); err != nil {
			e.logger.Debug("close after auth failure", zap.String("conn_id", client.ID()), zap.Error(err))
		}
		return
	}

	if !sess.authenticate(principal) {
		// Closed while the token was being verified
		return
	}

	identity := principal.Username
	logger := e.logger.With(zap.String("conn_id", client.ID()), zap.String("identity", identity))

	unlock := e.lockMarker(identity)
	prev, replaced := e.registry.Put(identity, sess)
	if err := e.presence.SetWithTTL(ctx, presence.OnlineKey(identity), principal.UserID, e.onlineTTL); err != nil {
		logger.Warn("set online marker", zap.Error(err))
	}
	unlock()

	if replaced {
		logger.Info("session replaced", zap.String("previous_conn_id", prev.Client().ID()))
	}
	e.metrics.SetSessionsOnline(e.registry.Len())

	logger.Info("user authenticated")
	e.reply(ctx, sess, protocol.NewAuthSuccess(identity))
	e.broadcastRoster(ctx)
}

// Run drives the application heartbeat until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.heartbeat(ctx)
		}
	}
}

// heartbeat pings every registered session and refreshes its online marker.
// A missing pong never closes a connection.
func (e *Engine) heartbeat(ctx context.Context) {
	ping := protocol.NewPing()
	for _, entry := range e.registry.Snapshot() {
		e.deliver(ctx, entry.Session, ping)
		e.refreshOnline(ctx, entry.Identity, entry.Session)
	}
}

// refreshOnline extends the online marker of identity while sess is still its
// registered session.
func (e *Engine) refreshOnline(ctx context.Context, identity string, sess *Session) {
	unlock := e.lockMarker(identity)
	defer unlock()

	if cur, ok := e.registry.Get(identity); !ok || cur != sess {
		return
	}
	if err := e.presence.SetWithTTL(ctx, presence.OnlineKey(identity), sess.UserID(), e.onlineTTL); err != nil {
		e.logger.Warn("refresh online marker", zap.String("identity", identity), zap.Error(err))
	}
}

// lockMarker serializes registry changes of identity with the writes to its
// online marker.
func (e *Engine) lockMarker(identity string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	mu := &e.markerLocks[h.Sum32()%uint32(len(e.markerLocks))]
	mu.Lock()
	return mu.Unlock
}
