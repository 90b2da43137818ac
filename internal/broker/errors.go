package broker

import "errors"

var (
	ErrClosed          = errors.New("broker: client closed")
	ErrIDTaken         = errors.New("broker: id already registered")
	ErrPeerUnavailable = errors.New("broker: peer unavailable")
	ErrNetwork         = errors.New("broker: network error")
	ErrBroker          = errors.New("broker: request failed")
)
