package media

import (
	"errors"
	"testing"
)

func TestSyntheticDevice_AudioOnly(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer stream.Close()

	tracks := stream.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].Kind() != TrackAudio {
		t.Errorf("expected audio track, got %s", tracks[0].Kind())
	}
	if !tracks[0].Enabled() {
		t.Errorf("expected track to start enabled")
	}
	if stream.Track(TrackVideo) != nil {
		t.Errorf("expected no video track")
	}
}

func TestSyntheticDevice_AudioAndVideo(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer stream.Close()

	if len(stream.Tracks()) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(stream.Tracks()))
	}
	if stream.Track(TrackAudio) == nil {
		t.Errorf("expected an audio track")
	}
	if stream.Track(TrackVideo) == nil {
		t.Errorf("expected a video track")
	}
}

func TestSyntheticDevice_EmptyConstraints(t *testing.T) {
	device := NewSyntheticDevice()

	_, err := device.Open(Constraints{})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if device.OpenCount() != 0 {
		t.Errorf("expected no acquisitions, got %d", device.OpenCount())
	}
}

func TestSyntheticDevice_ReleaseTracking(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	if device.OpenCount() != 1 {
		t.Errorf("expected 1 acquisition, got %d", device.OpenCount())
	}
	if device.Released() {
		t.Errorf("expected device to be held while the stream is open")
	}

	stream.Close()

	if !device.Released() {
		t.Errorf("expected device to be released after close")
	}
}

func TestStream_CloseStopsTracks(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	if stream.LiveTracks() != 2 {
		t.Fatalf("expected 2 live tracks, got %d", stream.LiveTracks())
	}

	stream.Close()

	if stream.LiveTracks() != 0 {
		t.Errorf("expected 0 live tracks after close, got %d", stream.LiveTracks())
	}
	for _, track := range stream.Tracks() {
		select {
		case <-track.Stopped():
		default:
			t.Errorf("expected %s track to be stopped", track.Kind())
		}
	}
}

func TestStream_CloseTwice(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	stream.Close()
	stream.Close()

	if !device.Released() {
		t.Errorf("expected device to be released")
	}
	if device.OpenCount() != 1 {
		t.Errorf("expected 1 acquisition, got %d", device.OpenCount())
	}
}

func TestTrack_ToggleEnabled(t *testing.T) {
	device := NewSyntheticDevice()

	stream, err := device.Open(Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer stream.Close()

	track := stream.Track(TrackAudio)
	track.SetEnabled(false)
	if track.Enabled() {
		t.Errorf("expected track to be disabled")
	}

	track.SetEnabled(true)
	if !track.Enabled() {
		t.Errorf("expected track to be enabled again")
	}
}

func TestFailingDevice_DefaultError(t *testing.T) {
	_, err := FailingDevice{}.Open(Constraints{Audio: true})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestFailingDevice_CustomError(t *testing.T) {
	custom := errors.New("hardware fault")

	_, err := FailingDevice{Err: custom}.Open(Constraints{Audio: true})
	if !errors.Is(err, custom) {
		t.Fatalf("expected custom error, got %v", err)
	}
}

func TestFileDevice_MissingPath(t *testing.T) {
	device := &FileDevice{}

	_, err := device.Open(Constraints{Audio: true})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestFileDevice_UnreadableFile(t *testing.T) {
	device := &FileDevice{AudioPath: "/nonexistent/capture.ogg"}

	_, err := device.Open(Constraints{Audio: true})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}
