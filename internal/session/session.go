// Package session is the top of the peer-to-peer stack: one local
// identity, at most one data connection, at most one call. It owns
// the broker client and routes every relayed signal to the data link
// or the call manager; everything user visible lands in the chat log.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/call"
	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/logger"
	"github.com/peerline/peerline/internal/media"
	"github.com/peerline/peerline/internal/transport"
	"github.com/peerline/peerline/internal/wire"
)

// Status is the data connection lifecycle position.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	// DefaultHandshakeTimeout bounds connection establishment. The
	// negotiation itself would otherwise hang forever on a peer that
	// never answers.
	DefaultHandshakeTimeout = 30 * time.Second
	// DefaultChunkSize keeps file frames comfortably under common
	// data channel message limits.
	DefaultChunkSize = 32 * 1024
)

// Config configures a session.
type Config struct {
	// BrokerURL of the rendezvous relay websocket endpoint.
	BrokerURL string
	// STUNServers used for NAT traversal. Empty gathers host
	// candidates only; the CLI supplies the public resolver set.
	STUNServers []string
	// HandshakeTimeout bounds Connect and how long an outbound call
	// may ring unanswered. Zero means the default.
	HandshakeTimeout time.Duration
	// ChunkSize for chunked file transfers. Zero means the default.
	ChunkSize int
	// ChunkedTransfers selects the chunked file protocol. When false
	// files travel as one frame, which any peer understands.
	ChunkedTransfers bool
	// Device supplies local media for calls. When nil, calls fail
	// with a no-device notice while chat and transfers keep working.
	Device media.Device
	// Logger defaults to logger.NewLogger when nil.
	Logger *slog.Logger
	// LoggerFactory routes pion's internal logging.
	LoggerFactory logging.LoggerFactory
	// OnTransferProgress, when set, is invoked as file payload moves
	// in either direction. done and total are byte counts.
	OnTransferProgress func(name string, done, total int)
	// OnRing, when set, fires for inbound calls.
	OnRing func(remoteID identity.ID, mode call.Mode)
}

// DefaultConfig returns the settings the CLI starts from.
func DefaultConfig() Config {
	return Config{
		BrokerURL:        "ws://localhost:8787/ws",
		HandshakeTimeout: DefaultHandshakeTimeout,
		ChunkSize:        DefaultChunkSize,
		ChunkedTransfers: true,
	}
}

// Session is one endpoint of the peer-to-peer layer.
type Session struct {
	cfg       Config
	logger    *slog.Logger
	log       *chatlog.Log
	codec     *wire.Codec
	transport *transport.Transport
	call      *call.Manager

	// sendMu serializes writers on the data link, so envelope
	// sequences hit the wire in stamp order and a file transfer's
	// chunk stream is never interleaved with another writer's frames.
	sendMu sync.Mutex

	mu         sync.Mutex
	id         identity.ID
	client     *broker.Client
	status     Status
	remoteID   identity.ID
	connID     string
	link       *transport.Link
	sendSeq    uint64
	connectErr chan error
	closed     bool
}

func New(cfg Config) *Session {
	def := DefaultConfig()
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = def.BrokerURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Device == nil {
		cfg.Device = media.FailingDevice{Err: media.ErrNoDevice}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	s := &Session{
		cfg:    cfg,
		logger: log,
		log:    chatlog.NewLog(),
		codec:  wire.NewCodec(),
		transport: transport.New(transport.Config{
			STUNServers:   cfg.STUNServers,
			LoggerFactory: cfg.LoggerFactory,
			Logger:        log,
		}),
	}
	s.call = call.NewManager(call.Config{
		Transport:    s.transport,
		Device:       cfg.Device,
		Log:          s.log,
		Logger:       log,
		Send:         s.sendSignal,
		OnRing:       cfg.OnRing,
		SetupTimeout: cfg.HandshakeTimeout,
	})
	return s
}

// Register generates the session identity and opens the persistent
// broker registration. There is no automatic retry: on failure the
// session stays usable but unreachable, and a fresh session is the
// way to try again.
func (s *Session) Register(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.client != nil {
		s.mu.Unlock()
		return ErrRegistered
	}
	s.mu.Unlock()

	id, err := identity.New()
	if err != nil {
		return err
	}

	client, err := broker.Dial(ctx, broker.ClientConfig{
		URL:    s.cfg.BrokerURL,
		ID:     id,
		Logger: s.logger,
	})
	if err != nil {
		s.log.AppendNotice("registration failed, id not available")
		s.logger.Warn("failed to register with broker", "error", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = client.Close()
		return ErrClosed
	}
	// A concurrent Register may have won the slot while this one was
	// dialing; the loser gives its registration back.
	if s.client != nil {
		s.mu.Unlock()
		_ = client.Close()
		return ErrRegistered
	}
	s.id = id
	s.client = client
	s.mu.Unlock()

	go s.route(client)

	s.logger.Info("registered", "id", id.String())
	return nil
}

// ID returns the local identity, zero until Register succeeds.
func (s *Session) ID() identity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the data connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RemoteID returns the connected peer, zero when disconnected.
func (s *Session) RemoteID() identity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Log exposes the message log for rendering and subscription.
func (s *Session) Log() *chatlog.Log {
	return s.log
}

// Call exposes the call manager for state queries.
func (s *Session) Call() *call.Manager {
	return s.call
}

// StartCall places a call to the connected peer.
func (s *Session) StartCall(ctx context.Context, mode call.Mode) error {
	s.mu.Lock()
	if s.status != StatusConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	remote := s.remoteID
	s.mu.Unlock()

	return s.call.Start(ctx, remote, mode)
}

// AnswerCall accepts the ringing call.
func (s *Session) AnswerCall(ctx context.Context) error {
	return s.call.Answer(ctx)
}

// RejectCall declines the ringing call.
func (s *Session) RejectCall() error {
	return s.call.Reject()
}

// HangUp ends the outgoing or active call.
func (s *Session) HangUp() error {
	return s.call.HangUp()
}

// ToggleMute flips the microphone of the active call.
func (s *Session) ToggleMute() (bool, error) {
	return s.call.ToggleMute()
}

// ToggleCamera flips the camera of the active call.
func (s *Session) ToggleCamera() (bool, error) {
	return s.call.ToggleCamera()
}

// Close tears everything down: call, data link, broker registration,
// log subscribers. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	link := s.link
	client := s.client
	s.mu.Unlock()

	s.disconnect(link, "")
	if client != nil {
		_ = client.Close()
	}
	s.log.Close()
	return nil
}

// route fans relayed signals out to the data path and the call
// manager until the broker connection dies.
func (s *Session) route(client *broker.Client) {
	for sig := range client.Signals() {
		s.handleSignal(sig)
	}

	s.mu.Lock()
	wasClosed := s.closed
	if s.client == client {
		s.client = nil
	}
	s.mu.Unlock()

	if !wasClosed {
		s.log.AppendNotice("lost connection to broker, id no longer reachable")
		s.logger.Warn("broker connection lost")
	}
}

func (s *Session) handleSignal(sig broker.Signal) {
	if sig.Payload.Kind == broker.KindMedia {
		s.call.HandleSignal(context.Background(), sig)
		return
	}

	switch sig.Type {
	case broker.SignalOffer:
		s.acceptInbound(sig)
	case broker.SignalAnswer, broker.SignalCandidate:
		s.handleNegotiation(sig)
	case broker.SignalLeave:
		s.handleLeave(sig)
	case broker.SignalError:
		s.handleBrokerError(sig)
	default:
		s.logger.Debug("dropping signal", "type", string(sig.Type))
	}
}

// handleLeave reacts to the peer vanishing from the broker. A pending
// handshake cannot complete without it, so the attempt is failed; an
// established link is left alone because the data path no longer
// depends on the relay.
func (s *Session) handleLeave(sig broker.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity.ID(sig.Src) != s.remoteID {
		return
	}
	if s.status == StatusConnecting && s.connectErr != nil {
		select {
		case s.connectErr <- fmt.Errorf("%w: peer left during handshake", broker.ErrPeerUnavailable):
		default:
		}
		return
	}
	s.logger.Debug("peer left broker, keeping established link", "peer", sig.Src)
}

// handleBrokerError surfaces relay errors to whichever negotiation
// they belong to.
func (s *Session) handleBrokerError(sig broker.Signal) {
	s.mu.Lock()
	if s.status == StatusConnecting && s.connectErr != nil && sig.Payload.ConnectionID == s.connID {
		err := fmt.Errorf("%w: %s", sig.Payload.Code.Err(), sig.Payload.Message)
		select {
		case s.connectErr <- err:
		default:
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Not ours: it may belong to the call negotiation.
	s.call.HandleSignal(context.Background(), sig)
}

// sendSignal ships one signal through the broker registration.
func (s *Session) sendSignal(ctx context.Context, sig broker.Signal) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return ErrNotRegistered
	}
	return client.Send(ctx, sig)
}
