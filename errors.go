package kephaschat

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrUserNotFound     = errors.New("user not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrConnectionClosed = errors.New("client connection is closed")
	ErrSendQueueFull    = errors.New("client send queue is full")
)
