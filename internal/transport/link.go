package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
)

const recvBuffer = 256

// Link is one reliable ordered data channel to a single remote
// endpoint. Received payloads arrive on Recv; Done closes once the
// link is unusable for any reason.
type Link struct {
	negotiator
	remoteID  string
	initiator bool

	recvChan chan []byte
	opened   chan struct{}
	done     chan struct{}
	openOnce sync.Once
	doneOnce sync.Once

	dcMu sync.Mutex
	dc   *webrtc.DataChannel
}

func (l *Link) RemoteID() string {
	return l.remoteID
}

// Offer starts negotiation. Only the initiating side calls this.
func (l *Link) Offer(ctx context.Context) error {
	return l.offer(ctx)
}

func (l *Link) setupDataChannel(dc *webrtc.DataChannel) {
	l.dcMu.Lock()
	l.dc = dc
	l.dcMu.Unlock()

	dc.OnOpen(func() {
		l.openOnce.Do(func() { close(l.opened) })
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		// pion delivers messages one at a time, so blocking on a full
		// buffer pushes back on the channel until the reader catches
		// up. The channel is reliable and ordered; every frame must
		// reach the reader or the link must die.
		select {
		case l.recvChan <- msg.Data:
		case <-l.done:
		}
	})

	dc.OnClose(func() {
		l.markDone()
	})
}

// WaitOpen blocks until the data channel opens, the link dies, or ctx
// expires.
func (l *Link) WaitOpen(ctx context.Context) error {
	select {
	case <-l.opened:
		return nil
	case <-l.done:
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Opened closes once the data channel is open.
func (l *Link) Opened() <-chan struct{} {
	return l.opened
}

func (l *Link) Send(data []byte) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}

	l.dcMu.Lock()
	dc := l.dc
	l.dcMu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotReady
	}
	return dc.Send(data)
}

// Flush blocks until the outbound channel buffer drains, the link
// dies, or ctx expires. Send queues data; a sender that closes right
// after its last Send would otherwise cut off the tail in flight.
func (l *Link) Flush(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		l.dcMu.Lock()
		dc := l.dc
		l.dcMu.Unlock()

		if dc == nil || dc.BufferedAmount() == 0 {
			return nil
		}

		select {
		case <-l.done:
			return ErrLinkClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Link) Recv() <-chan []byte {
	return l.recvChan
}

// Done closes once the link is unusable: remote close, transport
// failure, or local Close.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) markDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *Link) Close() error {
	l.markDone()

	l.dcMu.Lock()
	dc := l.dc
	l.dcMu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	return l.pc.Close()
}
