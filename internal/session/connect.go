package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/transport"
)

// Connect establishes the data connection to remote. Only one
// connection exists at a time; calling while connecting or connected
// is rejected instead of silently redialing.
func (s *Session) Connect(ctx context.Context, remote string) error {
	remoteID, err := identity.Parse(remote)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.client == nil {
		s.mu.Unlock()
		return ErrNotRegistered
	}
	if remoteID == s.id {
		s.mu.Unlock()
		return ErrSelfConnect
	}
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, s.status)
	}

	connID := uuid.NewString()
	link, err := s.transport.NewDataLink(remoteID.String(), true, s.dataSignalSender(remoteID, connID))
	if err != nil {
		s.mu.Unlock()
		return err
	}

	errCh := make(chan error, 1)
	s.status = StatusConnecting
	s.remoteID = remoteID
	s.connID = connID
	s.link = link
	s.sendSeq = 0
	s.connectErr = errCh
	s.mu.Unlock()

	s.logger.Info("connecting", "peer", remoteID.String())

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if err := link.Offer(openCtx); err != nil {
		err = fmt.Errorf("session: connect to %s: %w", remoteID, err)
		s.disconnect(link, fmt.Sprintf("could not connect to %s: %v", remoteID, err))
		return err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- link.WaitOpen(openCtx) }()

	select {
	case err := <-waitErr:
		if err != nil {
			err = fmt.Errorf("session: connect to %s: %w", remoteID, err)
			s.disconnect(link, fmt.Sprintf("could not connect to %s: %v", remoteID, err))
			return err
		}
	case err := <-errCh:
		cancel()
		<-waitErr
		s.disconnect(link, fmt.Sprintf("could not connect to %s: %v", remoteID, err))
		return err
	}

	s.establish(link, remoteID)
	return nil
}

// acceptInbound answers an inbound data offer. Inbound connections
// are accepted unconditionally; if one already exists, the newest
// offer wins and the old connection is torn down.
func (s *Session) acceptInbound(sig broker.Signal) {
	remoteID, err := identity.Parse(sig.Src)
	if err != nil {
		s.logger.Debug("inbound offer with malformed source id", "src", sig.Src)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var oldLink *transport.Link
	var oldRemote identity.ID
	if s.link != nil {
		oldLink = s.link
		oldRemote = s.remoteID
	}

	connID := sig.Payload.ConnectionID
	link, err := s.transport.NewDataLink(remoteID.String(), false, s.dataSignalSender(remoteID, connID))
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("failed to accept inbound connection", "peer", sig.Src, "error", err)
		return
	}

	s.link = link
	s.status = StatusConnecting
	s.remoteID = remoteID
	s.connID = connID
	s.sendSeq = 0
	s.connectErr = nil
	s.mu.Unlock()

	if oldLink != nil {
		_ = oldLink.Close()
		s.call.Close()
		s.log.AppendNotice(fmt.Sprintf("connection to %s replaced by %s", oldRemote, remoteID))
	}

	s.logger.Info("inbound connection", "peer", remoteID.String())

	openCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)

	offer := transport.Signal{Type: transport.SignalOffer, SDP: sig.Payload.SDP}
	if err := link.HandleSignal(openCtx, offer); err != nil {
		cancel()
		s.logger.Warn("failed to answer inbound offer", "peer", sig.Src, "error", err)
		s.disconnect(link, fmt.Sprintf("inbound connection from %s failed", remoteID))
		return
	}

	go func() {
		defer cancel()
		if err := link.WaitOpen(openCtx); err != nil {
			s.disconnect(link, fmt.Sprintf("inbound connection from %s failed", remoteID))
			return
		}
		s.establish(link, remoteID)
	}()
}

// establish flips the session to connected and starts the receive
// loop. A stale link, replaced while its handshake was finishing,
// is closed instead.
func (s *Session) establish(link *transport.Link, remoteID identity.ID) {
	s.mu.Lock()
	if s.link != link {
		s.mu.Unlock()
		_ = link.Close()
		return
	}
	s.status = StatusConnected
	s.connectErr = nil
	s.mu.Unlock()

	s.log.AppendNotice(fmt.Sprintf("connected to %s", remoteID))
	s.logger.Info("connected", "peer", remoteID.String())

	r := &receiver{s: s, remote: remoteID}
	go r.run(link)
}

// handleNegotiation applies an answer or candidate for the current
// data negotiation. Anything not matching the in-flight connection id
// is stale and dropped.
func (s *Session) handleNegotiation(sig broker.Signal) {
	s.mu.Lock()
	link := s.link
	match := link != nil && sig.Payload.ConnectionID == s.connID && identity.ID(sig.Src) == s.remoteID
	s.mu.Unlock()

	if !match {
		s.logger.Debug("dropping stale signal", "type", string(sig.Type), "src", sig.Src)
		return
	}

	var tsig transport.Signal
	switch sig.Type {
	case broker.SignalAnswer:
		tsig = transport.Signal{Type: transport.SignalAnswer, SDP: sig.Payload.SDP}
	case broker.SignalCandidate:
		tsig = transport.Signal{Type: transport.SignalCandidate, Candidate: sig.Payload.Candidate}
	}

	if err := link.HandleSignal(context.Background(), tsig); err != nil {
		s.logger.Debug("failed to apply signal", "type", string(sig.Type), "error", err)
	}
}

// disconnect tears down one data link and everything riding on it:
// the link itself, the call, the connection slot. When link is non
// nil but no longer current this is a stale watcher firing late and
// nothing happens.
func (s *Session) disconnect(link *transport.Link, reason string) {
	s.mu.Lock()
	if link != nil && s.link != link {
		s.mu.Unlock()
		return
	}
	current := s.link
	s.link = nil
	s.status = StatusDisconnected
	s.remoteID = ""
	s.connID = ""
	s.connectErr = nil
	s.mu.Unlock()

	if current != nil {
		_ = current.Close()
	}
	s.call.Close()
	if reason != "" {
		s.log.AppendNotice(reason)
		s.logger.Info("disconnected", "reason", reason)
	}
}

func (s *Session) dataSignalSender(remote identity.ID, connID string) transport.SignalSender {
	return func(ctx context.Context, sig transport.Signal) error {
		out := broker.Signal{
			Dst: remote.String(),
			Payload: broker.Payload{
				ConnectionID: connID,
				Kind:         broker.KindData,
			},
		}
		switch sig.Type {
		case transport.SignalOffer:
			out.Type = broker.SignalOffer
			out.Payload.SDP = sig.SDP
		case transport.SignalAnswer:
			out.Type = broker.SignalAnswer
			out.Payload.SDP = sig.SDP
		case transport.SignalCandidate:
			out.Type = broker.SignalCandidate
			out.Payload.Candidate = sig.Candidate
		default:
			return fmt.Errorf("session: unhandled signal type %s", sig.Type)
		}
		return s.sendSignal(ctx, out)
	}
}
