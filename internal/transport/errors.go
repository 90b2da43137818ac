package transport

import "errors"

var (
	ErrNotReady   = errors.New("transport: data channel not open")
	ErrLinkClosed = errors.New("transport: link closed")
)
