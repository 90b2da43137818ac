package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
)

// negotiator owns the offer/answer/candidate mechanics shared by data
// and media links. Candidates that arrive before the remote
// description are buffered and applied once it lands.
type negotiator struct {
	pc     *webrtc.PeerConnection
	send   SignalSender
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   []webrtc.ICECandidateInit
}

// forwardCandidates relays locally gathered candidates to the remote
// endpoint as they appear.
func (n *negotiator) forwardCandidates() {
	n.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			n.logger.Debug("failed to marshal candidate", "error", err)
			return
		}
		if err := n.send(context.Background(), Signal{Type: SignalCandidate, Candidate: string(data)}); err != nil {
			n.logger.Debug("failed to forward candidate", "error", err)
		}
	})
}

// HandleSignal applies one inbound negotiation signal.
func (n *negotiator) HandleSignal(ctx context.Context, sig Signal) error {
	switch sig.Type {
	case SignalOffer:
		return n.handleOffer(ctx, sig.SDP)
	case SignalAnswer:
		return n.handleAnswer(sig.SDP)
	case SignalCandidate:
		return n.addCandidate(sig.Candidate)
	default:
		return fmt.Errorf("transport: unhandled signal type %d", sig.Type)
	}
}

func (n *negotiator) offer(ctx context.Context) error {
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	if err := n.send(ctx, Signal{Type: SignalOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("transport: send offer: %w", err)
	}
	return nil
}

func (n *negotiator) handleOffer(ctx context.Context, sdp string) error {
	if err := n.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("transport: create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	if err := n.send(ctx, Signal{Type: SignalAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("transport: send answer: %w", err)
	}
	return nil
}

func (n *negotiator) handleAnswer(sdp string) error {
	return n.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// setRemote applies the remote description and drains the candidate
// buffer under one lock, so a concurrently arriving candidate either
// lands in the buffer before the drain or is applied directly after.
func (n *negotiator) setRemote(desc webrtc.SessionDescription) error {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}

	for _, cand := range n.pending {
		if err := n.pc.AddICECandidate(cand); err != nil {
			n.logger.Debug("failed to apply buffered candidate", "error", err)
		}
	}
	n.pending = nil
	return nil
}

func (n *negotiator) addCandidate(raw string) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &cand); err != nil {
		return fmt.Errorf("transport: parse candidate: %w", err)
	}

	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	if n.pc.RemoteDescription() == nil {
		n.pending = append(n.pending, cand)
		return nil
	}
	if err := n.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("transport: add candidate: %w", err)
	}
	return nil
}
