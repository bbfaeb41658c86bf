package services

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownModel        = errors.New("unknown model")
	ErrChatNotFound        = errors.New("chat not found")
	ErrStreamTimeout       = errors.New("stream consumer timed out")
)
