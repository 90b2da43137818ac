package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

const oggSampleRate = 48000

var errCaptureStopped = errors.New("media: capture stopped")

// FileDevice plays recordings as capture input: Ogg Opus for audio
// and IVF VP8 for video. Files loop until the stream closes, so a
// call can outlast the recordings.
type FileDevice struct {
	AudioPath string
	VideoPath string
}

func (d *FileDevice) Open(c Constraints) (*Stream, error) {
	if (c.Audio && d.AudioPath == "") || (c.Video && d.VideoPath == "") {
		return nil, ErrNoDevice
	}

	streamID := "file-" + uuid.NewString()
	var tracks []*Track

	if c.Audio {
		if err := checkReadable(d.AudioPath); err != nil {
			return nil, err
		}
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("media: create audio track: %w", err)
		}
		track := newTrack(TrackAudio, local)
		go pumpFile(track, d.AudioPath, playOggOnce)
		tracks = append(tracks, track)
	}

	if c.Video {
		if err := checkReadable(d.VideoPath); err != nil {
			for _, t := range tracks {
				t.stopCapture()
			}
			return nil, err
		}
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("media: create video track: %w", err)
		}
		track := newTrack(TrackVideo, local)
		go pumpFile(track, d.VideoPath, playIVFOnce)
		tracks = append(tracks, track)
	}

	return newStream(streamID, tracks, nil), nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return f.Close()
}

// pumpFile replays the recording until the track stops, reopening the
// file at EOF.
func pumpFile(t *Track, path string, play func(*Track, string) error) {
	for {
		if err := play(t, path); err != nil {
			return
		}
		select {
		case <-t.Stopped():
			return
		default:
		}
	}
}

// playOggOnce streams one pass of an Ogg Opus file, pacing pages by
// their granule positions.
func playOggOnce(t *Track, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(audioFrameInterval)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		pageData, pageHeader, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration((sampleCount / oggSampleRate) * float64(time.Second))

		if err := t.WriteSample(media.Sample{Data: pageData, Duration: duration}); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-t.Stopped():
			return errCaptureStopped
		}
	}
}

// playIVFOnce streams one pass of an IVF file, pacing frames by the
// header timebase.
func playIVFOnce(t *Track, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	ivf, header, err := ivfreader.NewWith(file)
	if err != nil {
		return err
	}

	frameDuration := time.Duration(
		(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator)) * float64(time.Second),
	)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-t.Stopped():
			return errCaptureStopped
		}
	}
}
