package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/presence"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

func (e *Engine) handleMessage(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.SendMessageFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.To == "" || (f.Text == "" && f.MediaURL == "") {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	now := e.now().UTC()
	id := f.MessageID
	if id == "" {
		id = newMessageID(now.UnixMilli())
	}

	msg := f.ToMessage(id, me, now)
	if err := e.messages.SaveMessage(ctx, msg); err != nil {
		e.storeFailed("save", me, err)
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgSendFailed))
		return
	}

	frame := protocol.NewMessageFrame(msg)
	e.reply(ctx, sess, protocol.NewMessageSent(id))
	e.reply(ctx, sess, frame)
	if msg.To != me {
		e.sendTo(ctx, msg.To, frame)
	}
}

func (e *Engine) handleEditMessage(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.EditMessageFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.MessageID == "" || f.NewText == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	msg, err := e.messages.EditMessage(ctx, f.MessageID, me, f.NewText)
	if err != nil {
		e.replyStoreError(ctx, sess, "edit", err, kephaschat.ErrMsgEditFailed)
		return
	}

	e.sendTo(ctx, msg.To, protocol.NewMessageEdited(msg.ID, msg.Text, me))
}

func (e *Engine) handleDeleteMessage(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.DeleteMessageFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.MessageID == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	msg, err := e.messages.DeleteMessage(ctx, f.MessageID, me)
	if err != nil {
		e.replyStoreError(ctx, sess, "delete", err, kephaschat.ErrMsgDeleteFailed)
		return
	}

	e.sendTo(ctx, msg.To, protocol.NewMessageDeleted(msg.ID, me))
}

func (e *Engine) handleMarkRead(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.MarkReadFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.From == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	ids, err := e.messages.MarkRead(ctx, f.From, me)
	if err != nil {
		e.storeFailed("mark_read", me, err)
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgMarkReadFailed))
		return
	}

	e.sendTo(ctx, f.From, protocol.NewMessagesRead(ids, me))
}

func (e *Engine) handlePinMessage(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.PinMessageFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.To == "" || f.MessageID == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	pin := kephaschat.Pin{
		PinnedBy:    me,
		Peer:        f.To,
		MessageID:   f.MessageID,
		MessageText: f.MessageText,
		PinnedAt:    e.now().UTC(),
	}
	if err := e.messages.PinMessage(ctx, pin); err != nil {
		e.storeFailed("pin", me, err)
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgPinFailed))
		return
	}

	e.sendTo(ctx, f.To, protocol.NewMessagePinned(me, f.MessageID, f.MessageText))
}

func (e *Engine) handleUnpinMessage(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.UnpinMessageFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.To == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	if err := e.messages.UnpinMessage(ctx, me, f.To); err != nil {
		e.storeFailed("unpin", me, err)
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgUnpinFailed))
		return
	}

	e.sendTo(ctx, f.To, protocol.NewMessageUnpinned(me))
}

// handleTyping updates the typing marker and notifies the peer. Marker
// failures are logged only.
func (e *Engine) handleTyping(ctx context.Context, sess *Session, env protocol.Envelope) {
	f, err := decode[protocol.TypingFrame](env)
	if err != nil {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidFormat))
		return
	}
	if f.To == "" {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgInvalidMessage))
		return
	}

	me := sess.Identity()
	key := presence.TypingKey(me, f.To)
	if f.IsTyping {
		err = e.presence.SetWithTTL(ctx, key, "1", e.typingTTL)
	} else {
		err = e.presence.Delete(ctx, key)
	}
	if err != nil {
		e.logger.Warn("update typing marker", zap.String("identity", me), zap.String("to", f.To), zap.Error(err))
	}

	e.sendTo(ctx, f.To, protocol.NewTyping(me, f.IsTyping))
}

// replyStoreError maps an edit/delete failure to its client-visible error.
func (e *Engine) replyStoreError(ctx context.Context, sess *Session, op string, err error, failed string) {
	if errors.Is(err, kephaschat.ErrMessageNotFound) {
		e.reply(ctx, sess, protocol.NewError(kephaschat.ErrMsgNotFound))
		return
	}
	e.storeFailed(op, sess.Identity(), err)
	e.reply(ctx, sess, protocol.NewError(failed))
}

func (e *Engine) storeFailed(op, identity string, err error) {
	e.metrics.StoreError(op)
	e.logger.Error("store operation failed",
		zap.String("op", op), zap.String("identity", identity), zap.Error(err))
}

// newMessageID returns "<unix millis>-<8 hex chars>".
func newMessageID(millis int64) string {
	return fmt.Sprintf("%d-%s", millis, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
