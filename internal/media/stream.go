package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

type TrackKind uint8

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	switch k {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Track is one local capture track. Disabling it keeps the sample
// cadence but blanks the payload, so the transport stays up while the
// track carries silence.
type Track struct {
	kind     TrackKind
	local    *webrtc.TrackLocalStaticSample
	enabled  atomic.Bool
	live     atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

func newTrack(kind TrackKind, local *webrtc.TrackLocalStaticSample) *Track {
	t := &Track{
		kind:  kind,
		local: local,
		stop:  make(chan struct{}),
	}
	t.enabled.Store(true)
	t.live.Store(true)
	return t
}

func (t *Track) Kind() TrackKind { return t.kind }

// Local exposes the pion track for transport attachment.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }

func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled flips the mute flag. No renegotiation happens.
func (t *Track) SetEnabled(v bool) { t.enabled.Store(v) }

// Live reports whether the capture pump is still running.
func (t *Track) Live() bool { return t.live.Load() }

// WriteSample forwards one capture sample, blanking the payload while
// the track is disabled.
func (t *Track) WriteSample(s media.Sample) error {
	if !t.enabled.Load() {
		s.Data = make([]byte, len(s.Data))
	}
	return t.local.WriteSample(s)
}

// Stopped closes when the track's pump must end.
func (t *Track) Stopped() <-chan struct{} { return t.stop }

func (t *Track) stopCapture() {
	t.stopOnce.Do(func() {
		t.live.Store(false)
		close(t.stop)
	})
}

// Stream is one device acquisition: the set of tracks a call sends.
type Stream struct {
	id      string
	tracks  []*Track
	onClose func()
	once    sync.Once
}

func newStream(id string, tracks []*Track, onClose func()) *Stream {
	return &Stream{id: id, tracks: tracks, onClose: onClose}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the stream's track of the given kind, or nil.
func (s *Stream) Track(kind TrackKind) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// LiveTracks counts tracks whose pumps are still running.
func (s *Stream) LiveTracks() int {
	n := 0
	for _, t := range s.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

// Close stops every track pump and releases the device. Safe to call
// more than once.
func (s *Stream) Close() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.stopCapture()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}
