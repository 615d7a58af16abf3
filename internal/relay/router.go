package relay

import (
	"context"
	"fmt"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

// HandlerFunc handles one frame of an authenticated session.
type HandlerFunc func(ctx context.Context, sess *Session, env protocol.Envelope)

func (e *Engine) registerRoutes() {
	e.handle(kephaschat.FrameMessage, e.handleMessage)
	e.handle(kephaschat.FrameEditMessage, e.handleEditMessage)
	e.handle(kephaschat.FrameDeleteMessage, e.handleDeleteMessage)
	e.handle(kephaschat.FrameMarkRead, e.handleMarkRead)
	e.handle(kephaschat.FramePinMessage, e.handlePinMessage)
	e.handle(kephaschat.FrameUnpinMessage, e.handleUnpinMessage)
	e.handle(kephaschat.FrameTyping, e.handleTyping)
}

// handle registers h for tag. Registering a tag twice panics.
func (e *Engine) handle(tag string, h HandlerFunc) {
	if _, exists := e.routes[tag]; exists {
		panic(fmt.Sprintf("relay: duplicate handler for frame type %q", tag))
	}
	e.routes[tag] = h
}

// dispatch routes a decoded frame. auth and pong are handled in every state,
// all other known frames require an authenticated session.
func (e *Engine) dispatch(ctx context.Context, sess *Session, env protocol.Envelope) {
	switch env.Type {
	case kephaschat.FramePong:
		e.metrics.FrameReceived(env.Type, true)
		return
	case kephaschat.FrameAuth:
		e.metrics.FrameReceived(env.Type, true)
		e.handleAuth(ctx, sess, env)
		return
	}

	h, ok := e.routes[env.Type]
	e.metrics.FrameReceived(env.Type, ok)
	if !ok {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgUnknownType))
		return
	}
	if sess.State() != StateAuthenticated {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgNotAuthenticated))
		return
	}

	h(ctx, sess, env)
}

func decode[T any](env protocol.Envelope) (T, error) {
	var v T
	err := env.Unmarshal(&v)
	return v, err
}
