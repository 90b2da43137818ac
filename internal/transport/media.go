package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// TrackHandler receives a remote track once its media starts arriving.
type TrackHandler func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// MediaLink is the audio/video peer connection of a call. It shares
// the remote endpoint with the data link but is negotiated
// independently, so a call can come and go without touching the data
// channel.
type MediaLink struct {
	negotiator
	remoteID string

	done     chan struct{}
	doneOnce sync.Once

	senderMu sync.Mutex
	senders  []*webrtc.RTPSender
}

func (m *MediaLink) RemoteID() string {
	return m.remoteID
}

// AddTrack attaches a local track. The calling side adds its tracks
// before Offer; the answering side adds them before handling the
// remote offer, so they end up in the answer.
func (m *MediaLink) AddTrack(track webrtc.TrackLocal) error {
	sender, err := m.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("transport: add track: %w", err)
	}

	m.senderMu.Lock()
	m.senders = append(m.senders, sender)
	m.senderMu.Unlock()

	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// Offer starts negotiation. Only the calling side uses this.
func (m *MediaLink) Offer(ctx context.Context) error {
	return m.offer(ctx)
}

// Done closes once the media connection is unusable.
func (m *MediaLink) Done() <-chan struct{} {
	return m.done
}

func (m *MediaLink) markDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *MediaLink) Close() error {
	m.markDone()
	return m.pc.Close()
}
