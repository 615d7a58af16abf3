package protocol

import (
	"time"

	"github.com/luciancaetano/kephaschat"
)

// Inbound frames. Field names follow the wire contract.

type AuthFrame struct {
	Token string `json:"token"`
}

type SendMessageFrame struct {
	To            string    `json:"to"`
	Text          string    `json:"text"`
	MessageID     string    `json:"messageId,omitempty"`
	MediaType     string    `json:"mediaType,omitempty"`
	MediaURL      string    `json:"mediaUrl,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	FileSize      int64     `json:"fileSize,omitempty"`
	Duration      float64   `json:"duration,omitempty"`
	Waveform      []float64 `json:"waveform,omitempty"`
	Forwarded     bool      `json:"forwarded,omitempty"`
	ForwardedFrom string    `json:"forwardedFrom,omitempty"`
	ReplyTo       string    `json:"replyTo,omitempty"`
	ReplyToText   string    `json:"replyToText,omitempty"`
	ReplyToSender string    `json:"replyToSender,omitempty"`
}

type EditMessageFrame struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
	To        string `json:"to"`
}

type DeleteMessageFrame struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

type MarkReadFrame struct {
	From string `json:"from"`
}

type PinMessageFrame struct {
	To          string `json:"to"`
	MessageID   string `json:"messageId"`
	MessageText string `json:"messageText"`
}

type UnpinMessageFrame struct {
	To string `json:"to"`
}

type TypingFrame struct {
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// Outbound frames.

type AuthSuccess struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type MessageSent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// MessagePayload is the message object carried by outbound "message" frames.
type MessagePayload struct {
	ID            string     `json:"id"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Text          string     `json:"text"`
	Timestamp     time.Time  `json:"timestamp"`
	Read          bool       `json:"read"`
	MediaType     string     `json:"mediaType,omitempty"`
	MediaURL      string     `json:"mediaUrl,omitempty"`
	FileName      string     `json:"fileName,omitempty"`
	FileSize      int64      `json:"fileSize,omitempty"`
	Duration      float64    `json:"duration,omitempty"`
	Waveform      []float64  `json:"waveform,omitempty"`
	Forwarded     bool       `json:"forwarded,omitempty"`
	ForwardedFrom string     `json:"forwardedFrom,omitempty"`
	ReplyTo       string     `json:"replyTo,omitempty"`
	ReplyToText   string     `json:"replyToText,omitempty"`
	ReplyToSender string     `json:"replyToSender,omitempty"`
	EditedAt      *time.Time `json:"editedAt,omitempty"`
}

type MessageFrame struct {
	Type    string         `json:"type"`
	Message MessagePayload `json:"message"`
}

type MessageEdited struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
	From      string `json:"from"`
}

type MessageDeleted struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	From      string `json:"from"`
}

type MessagesRead struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"messageIds"`
	By         string   `json:"by"`
}

type MessagePinned struct {
	Type        string `json:"type"`
	From        string `json:"from"`
	MessageID   string `json:"messageId"`
	MessageText string `json:"messageText"`
}

type MessageUnpinned struct {
	Type string `json:"type"`
	From string `json:"from"`
}

type Typing struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

type OnlineUsers struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type NewUser struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type Ping struct {
	Type string `json:"type"`
}

// Constructors set the type tag so handlers never build a frame with the wrong one.

func NewAuthSuccess(username string) AuthSuccess {
	return AuthSuccess{Type: kephaschat.FrameAuthSuccess, Username: username}
}

func NewAuthError(msg string) Error {
	return Error{Type: kephaschat.FrameAuthError, Error: msg}
}

func NewError(msg string) Error {
	return Error{Type: kephaschat.FrameError, Error: msg}
}

func NewMessageSent(id string) MessageSent {
	return MessageSent{Type: kephaschat.FrameMessageSent, MessageID: id}
}

func NewMessageFrame(msg *kephaschat.Message) MessageFrame {
	return MessageFrame{Type: kephaschat.FrameMessage, Message: PayloadFromMessage(msg)}
}

func NewMessageEdited(id, text, from string) MessageEdited {
	return MessageEdited{Type: kephaschat.FrameMessageEdited, MessageID: id, NewText: text, From: from}
}

func NewMessageDeleted(id, from string) MessageDeleted {
	return MessageDeleted{Type: kephaschat.FrameMessageDeleted, MessageID: id, From: from}
}

func NewMessagesRead(ids []string, by string) MessagesRead {
	if ids == nil {
		ids = []string{}
	}
	return MessagesRead{Type: kephaschat.FrameMessagesRead, MessageIDs: ids, By: by}
}

func NewMessagePinned(from, id, text string) MessagePinned {
	return MessagePinned{Type: kephaschat.FrameMessagePinned, From: from, MessageID: id, MessageText: text}
}

func NewMessageUnpinned(from string) MessageUnpinned {
	return MessageUnpinned{Type: kephaschat.FrameMessageUnpinned, From: from}
}

func NewTyping(from string, isTyping bool) Typing {
	return Typing{Type: kephaschat.FrameTyping, From: from, IsTyping: isTyping}
}

func NewOnlineUsers(users []string) OnlineUsers {
	if users == nil {
		users = []string{}
	}
	return OnlineUsers{Type: kephaschat.FrameOnlineUsers, Users: users}
}

func NewNewUser(username, userID string) NewUser {
	return NewUser{Type: kephaschat.FrameNewUser, Username: username, UserID: userID}
}

func NewPing() Ping {
	return Ping{Type: kephaschat.FramePing}
}

// PayloadFromMessage flattens a stored message into its wire shape.
func PayloadFromMessage(msg *kephaschat.Message) MessagePayload {
	p := MessagePayload{
		ID:            msg.ID,
		From:          msg.From,
		To:            msg.To,
		Text:          msg.Text,
		Timestamp:     msg.CreatedAt,
		Read:          msg.Read,
		Forwarded:     msg.Forwarded,
		ForwardedFrom: msg.ForwardedFrom,
		EditedAt:      msg.EditedAt,
	}
	if m := msg.Media; m != nil {
		p.MediaType = m.Type
		p.MediaURL = m.URL
		p.FileName = m.FileName
		p.FileSize = m.Size
		p.Duration = m.Duration
		p.Waveform = m.Waveform
	}
	if r := msg.ReplyTo; r != nil {
		p.ReplyTo = r.MessageID
		p.ReplyToText = r.Text
		p.ReplyToSender = r.Sender
	}
	return p
}

// ToMessage builds the message to persist from an inbound frame. Sender, id
// and timestamp are assigned by the server.
func (f SendMessageFrame) ToMessage(id, from string, now time.Time) *kephaschat.Message {
	msg := &kephaschat.Message{
		ID:            id,
		From:          from,
		To:            f.To,
		Text:          f.Text,
		Forwarded:     f.Forwarded,
		ForwardedFrom: f.ForwardedFrom,
		CreatedAt:     now,
	}
	if f.MediaURL != "" {
		msg.Media = &kephaschat.Media{
			Type:     f.MediaType,
			URL:      f.MediaURL,
			FileName: f.FileName,
			Size:     f.FileSize,
			Duration: f.Duration,
			Waveform: f.Waveform,
		}
	}
	if f.ReplyTo != "" {
		msg.ReplyTo = &kephaschat.ReplyRef{
			MessageID: f.ReplyTo,
			Text:      f.ReplyToText,
			Sender:    f.ReplyToSender,
		}
	}
	if !msg.Forwarded {
		msg.ForwardedFrom = ""
	}
	return msg
}
