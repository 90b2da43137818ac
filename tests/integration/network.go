// Package integration exercises full peerline endpoints against a
// real relay over loopback: registration, data links, transfers and
// calls, with no network mocking anywhere.
package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/logger"
	"github.com/peerline/peerline/internal/session"
)

type Network struct {
	broker   *broker.Server
	sessions []*session.Session
	cancel   context.CancelFunc
	ctx      context.Context
	t        *testing.T
}

func NewNetwork(t *testing.T) *Network {
	t.Helper()

	log := logger.NewLogger()

	srv, err := broker.NewServer(broker.Config{
		Addr:   ":0",
		Logger: log,
	})
	if err != nil {
		t.Fatalf("Failed to create broker: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	go func() {
		_ = srv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	return &Network{
		broker: srv,
		cancel: cancel,
		ctx:    ctx,
		t:      t,
	}
}

// NewSession builds a session against the test relay and registers
// it. The config's broker URL is always overridden.
func (n *Network) NewSession(cfg session.Config) *session.Session {
	n.t.Helper()

	cfg.BrokerURL = n.broker.URL()
	sess := session.New(cfg)
	if err := sess.Register(n.ctx); err != nil {
		n.t.Fatalf("Failed to register session: %v", err)
	}

	n.sessions = append(n.sessions, sess)
	return sess
}

// ConnectPair dials from a to b and waits until both ends report the
// link established.
func (n *Network) ConnectPair(a, b *session.Session) {
	n.t.Helper()

	if err := a.Connect(n.ctx, b.ID().String()); err != nil {
		n.t.Fatalf("Connect failed: %v", err)
	}
	waitFor(n.t, 10*time.Second, "both endpoints connected", func() bool {
		return a.Status() == session.StatusConnected && b.Status() == session.StatusConnected
	})
}

func (n *Network) Context() context.Context {
	return n.ctx
}

func (n *Network) Close() {
	for _, s := range n.sessions {
		_ = s.Close()
	}
	n.cancel()
}

// waitFor polls until check passes or the deadline hits.
func waitFor(t *testing.T, timeout time.Duration, what string, check func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// remoteMessages returns the log entries of the given kind authored
// by the peer.
func remoteMessages(log *chatlog.Log, kind chatlog.Kind) []chatlog.Message {
	var out []chatlog.Message
	for _, m := range log.Messages() {
		if m.Kind == kind && m.Role == chatlog.RoleRemote {
			out = append(out, m)
		}
	}
	return out
}

// findNotice returns the first notice containing substr.
func findNotice(log *chatlog.Log, substr string) (chatlog.Message, bool) {
	for _, m := range log.Messages() {
		if m.Kind == chatlog.KindNotice && strings.Contains(m.Content, substr) {
			return m, true
		}
	}
	return chatlog.Message{}, false
}
