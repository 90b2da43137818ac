package session

import "errors"

var (
	ErrRegistered       = errors.New("session: already registered")
	ErrNotRegistered    = errors.New("session: not registered with the broker")
	ErrAlreadyConnected = errors.New("session: connection already in progress or established")
	ErrNotConnected     = errors.New("session: no connected peer")
	ErrSelfConnect      = errors.New("session: cannot connect to own id")
	ErrChecksum         = errors.New("session: file checksum mismatch")
	ErrClosed           = errors.New("session: closed")
)
