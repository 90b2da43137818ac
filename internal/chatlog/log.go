// Package chatlog keeps the ordered, append-only record of chat and
// transfer events for one session. Entries are ordered by local
// insertion; both endpoints keep their own logs and no cross-endpoint
// order is promised.
package chatlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

type Log struct {
	mu     sync.Mutex
	msgs   []Message
	index  map[string]int
	seq    uint64
	subs   map[int]chan Message
	nextID int
	closed bool
}

func NewLog() *Log {
	return &Log{
		index: make(map[string]int),
		subs:  make(map[int]chan Message),
	}
}

// Append stores m after assigning its ID, sequence and timestamp, then
// fans it out to subscribers. The stored entry is returned.
func (l *Log) Append(m Message) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	m.ID = uuid.NewString()
	m.Seq = l.seq
	m.CreatedAt = time.Now()

	l.index[m.ID] = len(l.msgs)
	l.msgs = append(l.msgs, m)

	for _, ch := range l.subs {
		select {
		case ch <- m:
		default:
			// slow subscriber, drop rather than block the log
		}
	}
	return m
}

func (l *Log) AppendText(role Role, body string) Message {
	return l.Append(Message{Role: role, Kind: KindText, Content: body})
}

func (l *Log) AppendFile(role Role, name string, size int64, payload []byte) Message {
	return l.Append(Message{
		Role:     role,
		Kind:     KindFile,
		Content:  name,
		FileName: name,
		FileSize: size,
		Payload:  payload,
	})
}

func (l *Log) AppendNotice(body string) Message {
	return l.Append(Message{Role: RoleSystem, Kind: KindNotice, Content: body})
}

// Messages returns a snapshot copy in insertion order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Get(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.msgs[i], true
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Subscribe returns a channel of future appends and a cancel func.
// Entries appended while the subscriber is not keeping up are dropped
// from its channel, never from the log.
func (l *Log) Subscribe() (<-chan Message, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Message, subscriberBuffer)
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextID
	l.nextID++
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close closes all subscriber channels. The stored entries stay
// readable.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}
