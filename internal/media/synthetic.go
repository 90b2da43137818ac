package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond

	syntheticAudioFrameSize = 160
	syntheticVideoFrameSize = 1200
)

// SyntheticDevice produces capture data without touching real
// hardware: a 20ms audio cadence and a roughly 30fps video cadence of
// dummy frames. It counts acquisitions and releases so tests can
// assert the device was taken and given back.
type SyntheticDevice struct {
	mu     sync.Mutex
	opens  int
	closes int
}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{}
}

func (d *SyntheticDevice) Open(c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, ErrNoDevice
	}

	streamID := "synthetic-" + uuid.NewString()
	var tracks []*Track

	if c.Audio {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("media: create audio track: %w", err)
		}
		track := newTrack(TrackAudio, local)
		go pumpSynthetic(track, audioFrameInterval, syntheticAudioFrameSize)
		tracks = append(tracks, track)
	}

	if c.Video {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("media: create video track: %w", err)
		}
		track := newTrack(TrackVideo, local)
		go pumpSynthetic(track, videoFrameInterval, syntheticVideoFrameSize)
		tracks = append(tracks, track)
	}

	d.mu.Lock()
	d.opens++
	d.mu.Unlock()

	return newStream(streamID, tracks, func() {
		d.mu.Lock()
		d.closes++
		d.mu.Unlock()
	}), nil
}

// OpenCount reports how many times the device was acquired.
func (d *SyntheticDevice) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Released reports whether every acquisition was closed again.
func (d *SyntheticDevice) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens == d.closes
}

// FailingDevice rejects every acquisition, standing in for a denied
// permission prompt or missing hardware.
type FailingDevice struct {
	Err error
}

func (d FailingDevice) Open(Constraints) (*Stream, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return nil, ErrPermissionDenied
}

// pumpSynthetic writes fixed size samples on a steady cadence until
// the track stops.
func pumpSynthetic(t *Track, interval time.Duration, size int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	for {
		select {
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: payload, Duration: interval}); err != nil {
				return
			}
		case <-t.Stopped():
			return
		}
	}
}
