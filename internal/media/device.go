// Package media is the local capture layer for calls. A Device hands
// out Streams of Tracks bound to pion sample tracks; capture is
// acquired exclusively on Open and released by Stream.Close. Every
// call exit path closes its stream, normal or not, so the device is
// never left locked.
package media

import "errors"

var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrNoDevice         = errors.New("media: no capture device")
)

// Constraints mirror what a call mode needs from the device: audio
// only, or audio plus video.
type Constraints struct {
	Audio bool
	Video bool
}

// Device produces local media streams.
type Device interface {
	Open(c Constraints) (*Stream, error)
}
