// Package broker implements the rendezvous protocol that lets two
// endpoints find each other by session id and exchange WebRTC
// negotiation data. The Client side is what a session uses against any
// reachable relay; the Server side is a minimal relay for development
// and tests. Nothing here touches media or file bytes, only signaling.
package broker

// SignalType classifies a relayed signaling message.
type SignalType string

const (
	SignalOpen      SignalType = "open"
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalLeave     SignalType = "leave"
	SignalError     SignalType = "error"
)

// ErrorCode is the broker's failure taxonomy, carried in error signals.
type ErrorCode string

const (
	CodePeerUnavailable ErrorCode = "peer-unavailable"
	CodeIDTaken         ErrorCode = "id-taken"
	CodeNetwork         ErrorCode = "network-error"
	CodeUnknown         ErrorCode = "unknown"
)

// Err maps a wire code onto the package sentinel errors.
func (c ErrorCode) Err() error {
	switch c {
	case CodePeerUnavailable:
		return ErrPeerUnavailable
	case CodeIDTaken:
		return ErrIDTaken
	case CodeNetwork:
		return ErrNetwork
	default:
		return ErrBroker
	}
}

// Connection kinds negotiated through the broker. A session opens one
// data connection and, during a call, one media connection.
const (
	KindData  = "data"
	KindMedia = "media"
)

// Payload carries the negotiation body of a signal. Which fields are
// set depends on the signal type: offers and answers carry SDP,
// candidate signals carry a serialized ICE candidate, error signals
// carry Code and Message. ConnectionID correlates all signals that
// belong to one logical connection attempt.
type Payload struct {
	ConnectionID string    `json:"connectionId,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	SDP          string    `json:"sdp,omitempty"`
	Candidate    string    `json:"candidate,omitempty"`
	Code         ErrorCode `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Signal is one relayed message. Src is stamped by the relay on
// forwarded signals, so receivers can trust it.
type Signal struct {
	Type    SignalType `json:"type"`
	Src     string     `json:"src,omitempty"`
	Dst     string     `json:"dst,omitempty"`
	Payload Payload    `json:"payload,omitempty"`
}
