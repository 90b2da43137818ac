package broker

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// endpoint is the server side of one connected client.
type endpoint struct {
	id   string
	conn *websocket.Conn
	send chan Signal

	mu      sync.Mutex
	touched map[string]bool
	closed  bool
}

// trySend queues sig without blocking. A full buffer or a closed
// endpoint drops the signal and reports false.
func (e *endpoint) trySend(sig Signal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	select {
	case e.send <- sig:
		return true
	default:
		return false
	}
}

// touch records that this endpoint exchanged signals with id, so the
// counterpart can be told when this endpoint goes away.
func (e *endpoint) touch(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.touched == nil {
		e.touched = make(map[string]bool)
	}
	e.touched[id] = true
}

func (e *endpoint) peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.touched))
	for id := range e.touched {
		out = append(out, id)
	}
	return out
}

func (e *endpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.send)
}

func (e *endpoint) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = e.conn.Close()
	}()

	for {
		select {
		case sig, ok := <-e.send:
			if !ok {
				_ = e.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := e.conn.WriteJSON(sig); err != nil {
				return
			}
		case <-ticker.C:
			_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := e.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// registry maps registered ids to their endpoints.
type registry struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
}

func newRegistry() *registry {
	return &registry{
		endpoints: make(map[string]*endpoint),
	}
}

// add registers ep under id, queuing ack while the id is still
// invisible to relays. No forwarded signal can precede the ack in the
// endpoint's send queue; the client relies on reading the verdict
// first.
func (r *registry) add(id string, ep *endpoint, ack Signal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[id]; exists {
		return false
	}
	ep.trySend(ack)
	r.endpoints[id] = ep
	return true
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, id)
}

func (r *registry) get(id string) (*endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	return ep, ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	eps := make([]*endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	r.endpoints = make(map[string]*endpoint)
	r.mu.Unlock()

	for _, ep := range eps {
		ep.close()
	}
}
