package kephaschat

// Frame type tags, client to server.
const (
	FrameAuth          = "auth"
	FrameMessage       = "message"
	FrameEditMessage   = "edit_message"
	FrameDeleteMessage = "delete_message"
	FrameMarkRead      = "mark_read"
	FramePinMessage    = "pin_message"
	FrameUnpinMessage  = "unpin_message"
	FrameTyping        = "typing"
	FramePong          = "pong"
)

// Frame type tags, server to client. FrameMessage and FrameTyping are shared
// with the inbound direction.
const (
	FrameAuthSuccess     = "auth_success"
	FrameAuthError       = "auth_error"
	FrameError           = "error"
	FrameMessageSent     = "message_sent"
	FrameMessageEdited   = "message_edited"
	FrameMessageDeleted  = "message_deleted"
	FrameMessagesRead    = "messages_read"
	FrameMessagePinned   = "message_pinned"
	FrameMessageUnpinned = "message_unpinned"
	FrameOnlineUsers     = "online_users"
	FrameNewUser         = "new_user"
	FramePing            = "ping"
)

// Error strings reported to clients in error and auth_error frames.
const (
	// Protocol errors
	ErrMsgInvalidFormat        = "Invalid message format"
	ErrMsgUnknownType          = "Unknown message type"
	ErrMsgNotAuthenticated     = "Not authenticated"
	ErrMsgAlreadyAuthenticated = "Already authenticated"
	ErrMsgInvalidMessage       = "Invalid message"
	ErrMsgInternal             = "Internal error"

	// Authentication errors
	ErrMsgInvalidToken = "Invalid token"
	ErrMsgUserNotFound = "User not found"

	// Adapter errors
	ErrMsgSendFailed     = "Failed to send message"
	ErrMsgNotFound       = "Message not found"
	ErrMsgEditFailed     = "Failed to edit message"
	ErrMsgDeleteFailed   = "Failed to delete message"
	ErrMsgMarkReadFailed = "Failed to mark messages as read"
	ErrMsgPinFailed      = "Failed to pin message"
	ErrMsgUnpinFailed    = "Failed to unpin message"
)

// Transport error strings.
const (
	ErrServerAlreadyRunning = "server already running"
	ErrFailedToEncode       = "failed to encode frame"
)
