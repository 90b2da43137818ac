package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config configures the bundled relay server.
type Config struct {
	// Addr to listen on, for example :9000. Use :0 in tests.
	Addr string
	// Logger defaults to logger.NewLogger when nil.
	Logger *slog.Logger
}

// Server is a minimal rendezvous relay. Endpoints register a session
// id over a websocket; signals addressed to a registered id are
// forwarded with Src stamped by the server, signals addressed to
// anyone else come back as peer-unavailable errors.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *registry
	ln       net.Listener
	httpSrv  *http.Server
}

// NewServer binds the listen address immediately so Addr is usable
// before Start.
func NewServer(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("broker: listen %s: %w", cfg.Addr, err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	s := &Server{
		cfg:      cfg,
		logger:   log,
		registry: newRegistry(),
		ln:       ln,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the websocket endpoint clients should dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/ws"
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Broker relay started", "addr", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(s.ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down broker relay")
	err := s.httpSrv.Shutdown(ctx)
	s.registry.closeAll()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	ep := &endpoint{
		conn: conn,
		send: make(chan Signal, sendBuffer),
	}
	go ep.writePump()
	s.readPump(ep)
}

func (s *Server) readPump(ep *endpoint) {
	defer func() {
		if ep.id != "" {
			s.registry.remove(ep.id)
			s.notifyLeave(ep)
			s.logger.Info("Endpoint disconnected", "id", ep.id)
		}
		ep.close()
	}()

	_ = ep.conn.SetReadDeadline(time.Now().Add(pongWait))
	ep.conn.SetPongHandler(func(string) error {
		return ep.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ep.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.logger.Debug("endpoint read error", "error", err)
			}
			return
		}

		var sig Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			s.logger.Debug("discarding malformed signal", "error", err)
			continue
		}
		s.route(ep, sig)
	}
}

func (s *Server) route(ep *endpoint, sig Signal) {
	switch sig.Type {
	case SignalOpen:
		s.handleOpen(ep, sig)
	case SignalOffer, SignalAnswer, SignalCandidate, SignalLeave:
		if ep.id == "" {
			ep.trySend(Signal{Type: SignalError, Payload: Payload{
				Code:    CodeUnknown,
				Message: "signal before registration",
			}})
			return
		}
		sig.Src = ep.id
		s.relay(ep, sig)
	default:
		s.logger.Warn("Unhandled signal type", "type", string(sig.Type))
	}
}

func (s *Server) handleOpen(ep *endpoint, sig Signal) {
	id, err := identity.Parse(sig.Src)
	if err != nil {
		ep.trySend(Signal{Type: SignalError, Payload: Payload{
			Code:    CodeUnknown,
			Message: "malformed session id",
		}})
		return
	}
	if ep.id != "" {
		s.logger.Debug("ignoring repeated open", "id", ep.id)
		return
	}

	ack := Signal{Type: SignalOpen, Dst: id.String()}
	if !s.registry.add(id.String(), ep, ack) {
		ep.trySend(Signal{Type: SignalError, Dst: id.String(), Payload: Payload{
			Code:    CodeIDTaken,
			Message: "id " + id.String() + " already registered",
		}})
		return
	}

	ep.id = id.String()
	s.logger.Info("Endpoint registered", "id", ep.id)
}

func (s *Server) relay(from *endpoint, sig Signal) {
	target, ok := s.registry.get(sig.Dst)
	if !ok {
		from.trySend(Signal{Type: SignalError, Dst: from.id, Payload: Payload{
			ConnectionID: sig.Payload.ConnectionID,
			Code:         CodePeerUnavailable,
			Message:      "peer " + sig.Dst + " is not registered",
		}})
		return
	}

	from.touch(sig.Dst)
	target.touch(from.id)

	if !target.trySend(sig) {
		s.logger.Warn("Dropping signal, endpoint buffer full", "dst", sig.Dst)
	}
}

// notifyLeave tells every peer ep signaled with that ep is gone.
func (s *Server) notifyLeave(ep *endpoint) {
	for _, id := range ep.peers() {
		if target, ok := s.registry.get(id); ok {
			target.trySend(Signal{Type: SignalLeave, Src: ep.id, Dst: id})
		}
	}
}
