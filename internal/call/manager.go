package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/logger"
	"github.com/peerline/peerline/internal/media"
	"github.com/peerline/peerline/internal/transport"
)

// Config wires the manager's collaborators.
type Config struct {
	Transport *transport.Transport
	Device    media.Device
	Log       *chatlog.Log
	Logger    *slog.Logger
	// Send ferries one media signal to the broker. The manager fills
	// in Dst and the media payload.
	Send func(ctx context.Context, sig broker.Signal) error
	// OnRing fires when an inbound call starts ringing. Optional.
	OnRing func(remoteID identity.ID, mode Mode)
	// SetupTimeout bounds how long an outbound call may ring before
	// it is torn down as unanswered. Zero disables the bound.
	SetupTimeout time.Duration
}

// Manager owns the single call slot. It acquires the local device,
// negotiates the media link and routes every exit path, local or
// remote, through one teardown.
type Manager struct {
	cfg     Config
	machine *Machine
	logger  *slog.Logger

	mu          sync.Mutex
	remoteID    identity.ID
	mode        Mode
	connID      string
	link        *transport.MediaLink
	stream      *media.Stream
	pendingSDP  string
	pendingCand []string
	activated   bool
	activatedAt time.Time
}

func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	return &Manager{
		cfg:     cfg,
		machine: NewMachine(),
		logger:  log,
	}
}

func (m *Manager) State() State {
	return m.machine.State()
}

// Peer returns the call counterpart, or the zero ID when idle.
func (m *Manager) Peer() identity.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}

// Mode returns what the current call carries. Meaningless when idle.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Elapsed reports wall clock time since activation, zero unless the
// call is active.
func (m *Manager) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activated || m.machine.State() != StateActive {
		return 0
	}
	return time.Since(m.activatedAt)
}

// Start places a call to remoteID. The caller must already hold an
// established data connection to that peer. The local device is
// acquired first; on acquisition failure the call never leaves idle
// and a notice is appended instead of retrying.
func (m *Manager) Start(ctx context.Context, remoteID identity.ID, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.machine.State(); st != StateIdle {
		return fmt.Errorf("%w: state %s", ErrCallInProgress, st)
	}

	stream, err := m.cfg.Device.Open(mode.Constraints())
	if err != nil {
		m.cfg.Log.AppendNotice(fmt.Sprintf("call failed: %v", err))
		return fmt.Errorf("call: acquire media: %w", err)
	}

	connID := uuid.NewString()
	link, err := m.cfg.Transport.NewMediaLink(
		remoteID.String(),
		m.signalSender(remoteID, connID, mode),
		m.onRemoteTrack,
	)
	if err != nil {
		stream.Close()
		m.cfg.Log.AppendNotice(fmt.Sprintf("call failed: %v", err))
		return err
	}

	for _, track := range stream.Tracks() {
		if err := link.AddTrack(track.Local()); err != nil {
			_ = link.Close()
			stream.Close()
			m.cfg.Log.AppendNotice(fmt.Sprintf("call failed: %v", err))
			return err
		}
	}

	if err := m.machine.Dial(); err != nil {
		_ = link.Close()
		stream.Close()
		return err
	}

	m.remoteID = remoteID
	m.mode = mode
	m.connID = connID
	m.link = link
	m.stream = stream
	m.watchLink(link)

	if err := link.Offer(ctx); err != nil {
		m.teardownLocked(fmt.Sprintf("call failed: %v", err))
		return err
	}
	m.watchSetup(connID)

	m.logger.Info("calling", "peer", remoteID.String(), "mode", mode.String())
	return nil
}

// watchSetup gives up on an outbound call the peer never answers.
// Callers hold m.mu.
func (m *Manager) watchSetup(connID string) {
	if m.cfg.SetupTimeout <= 0 {
		return
	}
	go func() {
		timer := time.NewTimer(m.cfg.SetupTimeout)
		defer timer.Stop()
		<-timer.C

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.connID != connID || m.machine.State() != StateCalling {
			return
		}
		m.sendLeave(m.remoteID, m.connID, "")
		m.teardownLocked(fmt.Sprintf("call to %s timed out, no answer", m.remoteID))
	}()
}

// Answer accepts the ringing call: acquire the device for the
// advertised mode, attach our tracks and complete the offer/answer
// exchange. On media acquisition failure the offer is terminated and
// the call returns to idle.
func (m *Manager) Answer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.machine.State(); st != StateIncoming {
		return fmt.Errorf("%w: answer in %s", ErrInvalidTransition, st)
	}

	stream, err := m.cfg.Device.Open(m.mode.Constraints())
	if err != nil {
		m.sendLeave(m.remoteID, m.connID, "media unavailable")
		m.teardownLocked(fmt.Sprintf("call failed: %v", err))
		return fmt.Errorf("call: acquire media: %w", err)
	}

	link, err := m.cfg.Transport.NewMediaLink(
		m.remoteID.String(),
		m.signalSender(m.remoteID, m.connID, m.mode),
		m.onRemoteTrack,
	)
	if err != nil {
		stream.Close()
		m.sendLeave(m.remoteID, m.connID, "")
		m.teardownLocked(fmt.Sprintf("call failed: %v", err))
		return err
	}

	// Tracks attach before the offer is applied so they end up in
	// the answer.
	for _, track := range stream.Tracks() {
		if err := link.AddTrack(track.Local()); err != nil {
			_ = link.Close()
			stream.Close()
			m.sendLeave(m.remoteID, m.connID, "")
			m.teardownLocked(fmt.Sprintf("call failed: %v", err))
			return err
		}
	}

	offer := transport.Signal{Type: transport.SignalOffer, SDP: m.pendingSDP}
	if err := link.HandleSignal(ctx, offer); err != nil {
		_ = link.Close()
		stream.Close()
		m.sendLeave(m.remoteID, m.connID, "")
		m.teardownLocked(fmt.Sprintf("call failed: %v", err))
		return err
	}

	for _, raw := range m.pendingCand {
		cand := transport.Signal{Type: transport.SignalCandidate, Candidate: raw}
		if err := link.HandleSignal(ctx, cand); err != nil {
			m.logger.Debug("failed to apply buffered candidate", "error", err)
		}
	}
	m.pendingSDP = ""
	m.pendingCand = nil

	m.link = link
	m.stream = stream
	m.watchLink(link)

	if _, err := m.machine.Answer(); err != nil {
		m.teardownLocked("")
		return err
	}
	m.noteActivationLocked()

	m.logger.Info("answered call", "peer", m.remoteID.String(), "mode", m.mode.String())
	return nil
}

// Reject declines the ringing call without touching any device.
func (m *Manager) Reject() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.machine.State(); st != StateIncoming {
		return fmt.Errorf("%w: reject in %s", ErrInvalidTransition, st)
	}

	m.sendLeave(m.remoteID, m.connID, "")
	m.teardownLocked("call rejected")
	return nil
}

// HangUp ends the outgoing or active call.
func (m *Manager) HangUp() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.machine.State()
	if st != StateCalling && st != StateActive {
		return fmt.Errorf("%w: hang up in %s", ErrInvalidTransition, st)
	}

	m.sendLeave(m.remoteID, m.connID, "")
	m.teardownLocked("call ended")
	return nil
}

// ToggleMute flips the microphone track and reports whether the call
// is now muted. Track level only: samples keep flowing as silence,
// nothing is renegotiated.
func (m *Manager) ToggleMute() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.State() != StateActive {
		return false, ErrNotActive
	}
	track := m.stream.Track(media.TrackAudio)
	if track == nil {
		return false, ErrNotActive
	}
	track.SetEnabled(!track.Enabled())
	return !track.Enabled(), nil
}

// ToggleCamera flips the camera track and reports whether it is now
// off. Errors on audio only calls.
func (m *Manager) ToggleCamera() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.State() != StateActive {
		return false, ErrNotActive
	}
	track := m.stream.Track(media.TrackVideo)
	if track == nil {
		return false, ErrNoVideoTrack
	}
	track.SetEnabled(!track.Enabled())
	return !track.Enabled(), nil
}

// HandleSignal routes one inbound media signal. Protocol level
// failures never propagate; they turn into notices and transitions.
func (m *Manager) HandleSignal(ctx context.Context, sig broker.Signal) {
	switch sig.Type {
	case broker.SignalOffer:
		m.handleOffer(sig)
	case broker.SignalAnswer, broker.SignalCandidate:
		m.handleNegotiation(ctx, sig)
	case broker.SignalLeave:
		m.handleLeave(sig)
	case broker.SignalError:
		m.handleError(sig)
	default:
		m.logger.Debug("dropping media signal", "type", string(sig.Type))
	}
}

// Close tears down whatever call is in flight without notifying the
// peer. The session uses it when the data connection dies and on
// shutdown; a call cannot outlive its connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.State() == StateIdle {
		return
	}
	m.teardownLocked("call ended")
}

func (m *Manager) handleOffer(sig broker.Signal) {
	m.mu.Lock()

	if m.machine.State() != StateIdle {
		// Busy: decline the new offer, leave the current call alone.
		m.sendLeave(identity.ID(sig.Src), sig.Payload.ConnectionID, "busy")
		m.mu.Unlock()
		return
	}

	mode, err := ParseMode(sig.Payload.Mode)
	if err != nil {
		m.logger.Debug("offer with unknown mode, assuming audio", "mode", sig.Payload.Mode)
	}

	if err := m.machine.Ring(); err != nil {
		m.mu.Unlock()
		return
	}

	m.remoteID = identity.ID(sig.Src)
	m.mode = mode
	m.connID = sig.Payload.ConnectionID
	m.pendingSDP = sig.Payload.SDP

	remoteID := m.remoteID
	m.cfg.Log.AppendNotice(fmt.Sprintf("incoming %s call from %s", mode, remoteID))
	m.mu.Unlock()

	m.logger.Info("ringing", "peer", remoteID.String(), "mode", mode.String())
	if m.cfg.OnRing != nil {
		m.cfg.OnRing(remoteID, mode)
	}
}

func (m *Manager) handleNegotiation(ctx context.Context, sig broker.Signal) {
	m.mu.Lock()

	if m.machine.State() == StateIdle || sig.Payload.ConnectionID != m.connID {
		m.mu.Unlock()
		m.logger.Debug("dropping stale media signal", "type", string(sig.Type))
		return
	}

	if m.link == nil {
		// Still ringing: the caller trickles candidates before we
		// answer. Keep them for the link Answer will build.
		if sig.Type == broker.SignalCandidate {
			m.pendingCand = append(m.pendingCand, sig.Payload.Candidate)
		}
		m.mu.Unlock()
		return
	}

	link := m.link
	m.mu.Unlock()

	var tsig transport.Signal
	switch sig.Type {
	case broker.SignalAnswer:
		tsig = transport.Signal{Type: transport.SignalAnswer, SDP: sig.Payload.SDP}
	case broker.SignalCandidate:
		tsig = transport.Signal{Type: transport.SignalCandidate, Candidate: sig.Payload.Candidate}
	}

	if err := link.HandleSignal(ctx, tsig); err != nil {
		m.logger.Debug("failed to apply media signal", "type", string(sig.Type), "error", err)
		return
	}

	if sig.Type == broker.SignalAnswer {
		m.mu.Lock()
		if _, err := m.machine.Answer(); err == nil {
			m.noteActivationLocked()
		}
		m.mu.Unlock()
	}
}

// handleError reacts to relay failures for the call's own
// negotiation, typically the peer dropping off the broker mid offer.
func (m *Manager) handleError(sig broker.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.State() == StateIdle || sig.Payload.ConnectionID != m.connID {
		return
	}
	m.teardownLocked(fmt.Sprintf("call failed: %s", sig.Payload.Message))
}

func (m *Manager) handleLeave(sig broker.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.machine.State()
	if st == StateIdle || identity.ID(sig.Src) != m.remoteID {
		return
	}
	if sig.Payload.ConnectionID != "" && sig.Payload.ConnectionID != m.connID {
		return
	}

	var reason string
	switch st {
	case StateCalling:
		if sig.Payload.Message == "busy" {
			reason = fmt.Sprintf("%s is busy", m.remoteID)
		} else {
			reason = fmt.Sprintf("call declined by %s", m.remoteID)
		}
	case StateIncoming:
		reason = fmt.Sprintf("call canceled by %s", m.remoteID)
	default:
		reason = fmt.Sprintf("call ended by %s", m.remoteID)
	}
	m.teardownLocked(reason)
}

// onRemoteTrack drives activation and keeps the remote track drained
// so the RTP pipeline never backs up.
func (m *Manager) onRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	m.mu.Lock()
	if _, err := m.machine.RemoteTrack(); err == nil {
		m.noteActivationLocked()
	}
	m.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

// noteActivationLocked stamps the activation instant the first time
// the machine reaches active. Callers hold m.mu.
func (m *Manager) noteActivationLocked() {
	if m.machine.State() != StateActive || m.activated {
		return
	}
	m.activated = true
	m.activatedAt = time.Now()
	m.cfg.Log.AppendNotice(fmt.Sprintf("%s call with %s started", m.mode, m.remoteID))
	m.logger.Info("call active", "peer", m.remoteID.String())
}

// watchLink tears the call down when its media connection dies out
// from under it. Callers hold m.mu.
func (m *Manager) watchLink(link *transport.MediaLink) {
	go func() {
		<-link.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.link != link {
			return
		}
		m.teardownLocked("call ended: media connection lost")
	}()
}

// teardownLocked is the single cleanup path: close the link, release
// the device, reset the machine and append the notice. Callers hold
// m.mu.
func (m *Manager) teardownLocked(reason string) {
	if m.link != nil {
		_ = m.link.Close()
		m.link = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	m.pendingSDP = ""
	m.pendingCand = nil
	m.remoteID = ""
	m.connID = ""
	m.activated = false
	m.activatedAt = time.Time{}
	m.machine.End()

	if reason != "" {
		m.cfg.Log.AppendNotice(reason)
		m.logger.Info("call over", "reason", reason)
	}
}

func (m *Manager) signalSender(remoteID identity.ID, connID string, mode Mode) transport.SignalSender {
	return func(ctx context.Context, sig transport.Signal) error {
		out := broker.Signal{
			Dst: remoteID.String(),
			Payload: broker.Payload{
				ConnectionID: connID,
				Kind:         broker.KindMedia,
			},
		}
		switch sig.Type {
		case transport.SignalOffer:
			out.Type = broker.SignalOffer
			out.Payload.SDP = sig.SDP
			out.Payload.Mode = mode.String()
		case transport.SignalAnswer:
			out.Type = broker.SignalAnswer
			out.Payload.SDP = sig.SDP
		case transport.SignalCandidate:
			out.Type = broker.SignalCandidate
			out.Payload.Candidate = sig.Candidate
		default:
			return fmt.Errorf("call: unhandled signal type %s", sig.Type)
		}
		return m.cfg.Send(ctx, out)
	}
}

func (m *Manager) sendLeave(remoteID identity.ID, connID, message string) {
	sig := broker.Signal{
		Type: broker.SignalLeave,
		Dst:  remoteID.String(),
		Payload: broker.Payload{
			ConnectionID: connID,
			Kind:         broker.KindMedia,
			Message:      message,
		},
	}
	if err := m.cfg.Send(context.Background(), sig); err != nil {
		m.logger.Debug("failed to send leave", "peer", remoteID.String(), "error", err)
	}
}
