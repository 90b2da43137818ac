package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// ClientConfig configures a broker client.
type ClientConfig struct {
	// URL of the relay websocket endpoint, e.g. ws://localhost:9000/ws.
	URL string
	// ID to register at the relay.
	ID identity.ID
	// Logger defaults to logger.NewLogger when nil.
	Logger *slog.Logger
}

// Client is a registered connection to the rendezvous relay. It is a
// thin pipe: signals go out through Send and everything addressed to
// the registered id arrives on Signals. Interpretation belongs to the
// session layer.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	conn   *websocket.Conn

	sendCh  chan Signal
	signals chan Signal

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay and registers cfg.ID. It returns
// ErrIDTaken when the id is in use and ErrNetwork when the relay is
// unreachable. There is no automatic retry; callers own that policy.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNetwork, cfg.URL, err)
	}

	c := &Client{
		cfg:     cfg,
		logger:  log,
		conn:    conn,
		sendCh:  make(chan Signal, sendBuffer),
		signals: make(chan Signal, sendBuffer),
		closed:  make(chan struct{}),
	}

	if err := c.register(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readPump()
	go c.writePump()
	return c, nil
}

// register sends the open signal and waits for the relay's verdict.
// The relay guarantees the verdict is the first message it sends.
func (c *Client) register(ctx context.Context) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(Signal{Type: SignalOpen, Src: c.cfg.ID.String()}); err != nil {
		return fmt.Errorf("%w: register: %v", ErrNetwork, err)
	}

	_ = c.conn.SetReadDeadline(deadline)
	var ack Signal
	if err := c.conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("%w: register ack: %v", ErrNetwork, err)
	}
	_ = c.conn.SetReadDeadline(time.Time{})
	_ = c.conn.SetWriteDeadline(time.Time{})

	switch ack.Type {
	case SignalOpen:
		c.logger.Debug("registered with broker", "id", c.cfg.ID)
		return nil
	case SignalError:
		return fmt.Errorf("%w: %s", ack.Payload.Code.Err(), ack.Payload.Message)
	default:
		return fmt.Errorf("%w: unexpected ack type %q", ErrBroker, ack.Type)
	}
}

// ID returns the registered session id.
func (c *Client) ID() identity.ID {
	return c.cfg.ID
}

// Signals delivers everything the relay forwards to this id. The
// channel closes when the relay connection dies or Close is called.
func (c *Client) Signals() <-chan Signal {
	return c.signals
}

// Send queues sig for relay. Src is stamped with the registered id.
// Relay-side failures (unknown peer and the like) come back as error
// signals on Signals, not through this call.
func (c *Client) Send(ctx context.Context, sig Signal) error {
	sig.Src = c.cfg.ID.String()
	select {
	case c.sendCh <- sig:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the relay connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) readPump() {
	defer func() {
		_ = c.Close()
		close(c.signals)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var sig Signal
		if err := c.conn.ReadJSON(&sig); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Debug("broker connection lost", "error", err)
			}
			return
		}

		select {
		case c.signals <- sig:
		case <-c.closed:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case sig := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(sig); err != nil {
				c.logger.Debug("broker write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
