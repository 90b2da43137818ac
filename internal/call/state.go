// Package call runs the audio/video call layered on top of an
// established data connection. The Machine is the pure state core,
// the Manager drives it: device acquisition, media link negotiation
// through the broker, and the teardown path every exit goes through.
package call

import (
	"fmt"

	"github.com/peerline/peerline/internal/media"
)

// State is the call lifecycle position.
type State uint8

const (
	StateIdle State = iota
	StateCalling
	StateIncoming
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateIncoming:
		return "incoming"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Mode selects what the call carries. Audio acquires the microphone
// only; video acquires camera and microphone.
type Mode uint8

const (
	ModeAudio Mode = iota
	ModeVideo
)

func (m Mode) String() string {
	switch m {
	case ModeVideo:
		return "video"
	default:
		return "audio"
	}
}

// Constraints maps the mode onto a device acquisition request.
func (m Mode) Constraints() media.Constraints {
	return media.Constraints{Audio: true, Video: m == ModeVideo}
}

// ParseMode reads a mode tag. The empty string means audio, matching
// offers from endpoints that omit the tag.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "audio", "":
		return ModeAudio, nil
	case "video":
		return ModeVideo, nil
	default:
		return ModeAudio, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
