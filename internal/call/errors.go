package call

import "errors"

var (
	ErrCallInProgress    = errors.New("call: call already in progress")
	ErrInvalidTransition = errors.New("call: invalid state transition")
	ErrNotActive         = errors.New("call: no active call")
	ErrNoVideoTrack      = errors.New("call: no video track")
	ErrUnknownMode       = errors.New("call: unknown mode")
)
