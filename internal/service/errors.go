package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrThreadBusy        = errors.New("thread is already generating a response")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConfiguration     = errors.New("configuration error")
)
