package service

import "errors"

// ErrClientClosed indicates the client has been closed.
var ErrClientClosed = errors.New("marginalia: client is closed")

// ErrSessionClosed indicates the session has been closed.
var ErrSessionClosed = errors.New("marginalia: session is closed")

// ErrEmptySelection indicates a highlight request without any text.
var ErrEmptySelection = errors.New("selection has no text")
