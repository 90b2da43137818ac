package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/call"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/logger"
)

func setupBroker(t *testing.T) *broker.Server {
	t.Helper()

	srv, err := broker.NewServer(broker.Config{
		Addr:   ":0",
		Logger: logger.NewLogger(),
	})
	if err != nil {
		t.Fatalf("failed to start broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = srv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	t.Cleanup(cancel)
	return srv
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BrokerURL == "" {
		t.Error("expected a default broker url")
	}
	if cfg.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("expected %s handshake timeout, got %s", DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	}
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("expected %d chunk size, got %d", DefaultChunkSize, cfg.ChunkSize)
	}
	if !cfg.ChunkedTransfers {
		t.Error("expected chunked transfers by default")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	if s.Status() != StatusDisconnected {
		t.Errorf("expected status disconnected, got %s", s.Status())
	}
	if s.ID() != "" {
		t.Errorf("expected no identity before registering, got %s", s.ID())
	}
	if s.Call().State() != call.StateIdle {
		t.Errorf("expected idle call state, got %s", s.Call().State())
	}
}

func TestSendTextWhenDisconnected(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	if err := s.SendText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendFileWhenDisconnected(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	err := s.SendFile(context.Background(), "notes.txt", strings.NewReader("hi"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectBeforeRegister(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	err := s.Connect(context.Background(), "AB12CD")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestConnectInvalidID(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	err := s.Connect(context.Background(), "not a valid id")
	if !errors.Is(err, identity.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestStartCallWhenDisconnected(t *testing.T) {
	s := New(Config{})
	defer func() { _ = s.Close() }()

	err := s.StartCall(context.Background(), call.ModeAudio)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	srv := setupBroker(t)

	s := New(Config{BrokerURL: srv.URL()})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Register(ctx); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if len(s.ID()) != identity.Length {
		t.Errorf("expected a %d character id, got %q", identity.Length, s.ID())
	}
}

func TestRegisterConcurrent(t *testing.T) {
	srv := setupBroker(t)

	s := New(Config{BrokerURL: srv.URL()})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Register(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrRegistered):
			lost++
		default:
			t.Fatalf("unexpected register error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("expected exactly one winner, got %d wins and %d losses", won, lost)
	}
	if len(s.ID()) != identity.Length {
		t.Errorf("expected a %d character id, got %q", identity.Length, s.ID())
	}
}

func TestRegisterTwice(t *testing.T) {
	srv := setupBroker(t)

	s := New(Config{BrokerURL: srv.URL()})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Register(ctx); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if err := s.Register(ctx); !errors.Is(err, ErrRegistered) {
		t.Fatalf("expected ErrRegistered, got %v", err)
	}
}

func TestRegisterUnreachableBroker(t *testing.T) {
	s := New(Config{BrokerURL: "ws://127.0.0.1:1/ws"})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Register(ctx)
	if !errors.Is(err, broker.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if s.ID() != "" {
		t.Errorf("expected no identity after a failed registration, got %s", s.ID())
	}

	found := false
	for _, m := range s.Log().Messages() {
		if strings.Contains(m.Content, "registration failed") {
			found = true
		}
	}
	if !found {
		t.Error("expected a registration failed notice")
	}
}

func TestConnectToSelf(t *testing.T) {
	srv := setupBroker(t)

	s := New(Config{BrokerURL: srv.URL()})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Register(ctx); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if err := s.Connect(ctx, s.ID().String()); !errors.Is(err, ErrSelfConnect) {
		t.Fatalf("expected ErrSelfConnect, got %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	s := New(Config{})

	if err := s.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close again: %v", err)
	}
}

func TestRegisterAfterClose(t *testing.T) {
	s := New(Config{})
	_ = s.Close()

	if err := s.Register(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
