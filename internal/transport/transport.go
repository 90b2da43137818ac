// Package transport wraps pion WebRTC with the small surface the
// session layer needs: one reliable ordered data link per remote
// endpoint, plus media links for calls. Negotiation data travels
// through whatever relay the caller wires in via SignalSender; the
// package never talks to the rendezvous service itself.
package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v3"

	"github.com/peerline/peerline/internal/logger"
)

// Config configures the shared WebRTC factory.
type Config struct {
	// STUNServers used for NAT traversal address discovery. Leave
	// empty to gather host candidates only, which is enough for
	// loopback tests.
	STUNServers []string
	// LoggerFactory routes pion's internal logging. Defaults to
	// pion's own factory, which honors PION_LOG_* env vars.
	LoggerFactory logging.LoggerFactory
	// Logger defaults to logger.NewLogger when nil.
	Logger *slog.Logger
}

// DefaultConfig returns the public STUN resolver set.
func DefaultConfig() Config {
	return Config{
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
			"stun:stun2.l.google.com:19302",
			"stun:stun3.l.google.com:19302",
			"stun:stun4.l.google.com:19302",
		},
	}
}

// DefaultDataChannelInit returns the channel settings every data link
// uses: reliable, ordered, unlimited retransmits.
func DefaultDataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	protocol := "peerline"
	return &webrtc.DataChannelInit{
		Ordered:  &ordered,
		Protocol: &protocol,
	}
}

const dataChannelLabel = "peerline-data"

// SignalType classifies negotiation data ferried between endpoints.
type SignalType uint8

const (
	SignalOffer SignalType = iota
	SignalAnswer
	SignalCandidate
)

func (t SignalType) String() string {
	switch t {
	case SignalOffer:
		return "OFFER"
	case SignalAnswer:
		return "ANSWER"
	case SignalCandidate:
		return "CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

// Signal is one unit of negotiation data. Offers and answers carry
// SDP; candidate signals carry a JSON encoded ICE candidate.
type Signal struct {
	Type      SignalType
	SDP       string
	Candidate string
}

// SignalSender ferries a signal to the remote endpoint through the
// rendezvous service.
type SignalSender func(ctx context.Context, sig Signal) error

// Transport builds peer connections against one ICE configuration.
type Transport struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *slog.Logger
}

func New(cfg Config) *Transport {
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	settings := webrtc.SettingEngine{LoggerFactory: lf}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, server := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{server}})
	}

	return &Transport{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		config: webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: webrtc.ICETransportPolicyAll,
		},
		logger: log,
	}
}

// NewDataLink builds the data channel link to remoteID. The initiator
// creates the channel and must call Offer; the accepting side waits
// for the remote channel announcement. Negotiation signals go out
// through send.
func (t *Transport) NewDataLink(remoteID string, initiator bool, send SignalSender) (*Link, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("transport: create peer connection: %w", err)
	}

	l := &Link{
		negotiator: negotiator{pc: pc, send: send, logger: t.logger},
		remoteID:   remoteID,
		initiator:  initiator,
		recvChan:   make(chan []byte, recvBuffer),
		opened:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	l.forwardCandidates()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			l.markDone()
		}
	})

	if initiator {
		dc, err := pc.CreateDataChannel(dataChannelLabel, DefaultDataChannelInit())
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("transport: create data channel: %w", err)
		}
		l.setupDataChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			l.setupDataChannel(dc)
		})
	}

	return l, nil
}

// NewMediaLink builds the media peer connection of a call. onTrack
// fires for every remote track once its media starts arriving.
func (t *Transport) NewMediaLink(remoteID string, send SignalSender, onTrack TrackHandler) (*MediaLink, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("transport: create peer connection: %w", err)
	}

	m := &MediaLink{
		negotiator: negotiator{pc: pc, send: send, logger: t.logger},
		remoteID:   remoteID,
		done:       make(chan struct{}),
	}
	m.forwardCandidates()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.markDone()
		}
	})

	if onTrack != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			onTrack(track, receiver)
		})
	}

	return m, nil
}
