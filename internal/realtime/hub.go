package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/protocol"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errSubscriberClosed = errors.New("subscriber closed")

// Conn is the slice of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one live push channel. Once closed it is never reopened.
type Subscriber struct {
	id    string
	conn  Conn
	state atomic.Int32

	// gorilla connections allow a single concurrent writer.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) State() State { return State(s.state.Load()) }

func (s *Subscriber) send(data []byte, timeout time.Duration) error {
	if s.State() != StateOpen {
		return errSubscriberClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		_ = s.conn.Close()
	})
}

// Hub owns the live subscriber set and fans task events out to it.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool

	writeTimeout time.Duration
	metrics      *observability.Metrics
}

func NewHub(writeTimeout time.Duration, metrics *observability.Metrics) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Hub{
		subs:         make(map[string]*Subscriber),
		writeTimeout: writeTimeout,
		metrics:      metrics,
	}
}

// Subscribe registers an upgraded connection. After Close the returned
// subscriber is already closed.
func (h *Hub) Subscribe(conn Conn) *Subscriber {
	sub := &Subscriber{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub
	}
	sub.state.Store(int32(StateOpen))
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.observeCount(n, "subscribed")
	return sub
}

// Unsubscribe removes and closes sub. Safe to call repeatedly.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	current, ok := h.subs[sub.id]
	removed := ok && current == sub
	if removed {
		delete(h.subs, sub.id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if removed {
		h.observeCount(n, "unsubscribed")
	}
}

// Broadcast encodes msg once and writes it to every subscriber present when
// the call starts. Failed subscribers are dropped after the pass; failures
// are logged and never returned.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("realtime: encode broadcast failed: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	event := string(protocol.EventOf(msg))
	start := time.Now()
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, sub := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sub.send(data, h.writeTimeout)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	failed := 0
	for i, sub := range targets {
		if errs[i] == nil {
			continue
		}
		failed++
		log.Printf("realtime: dropping subscriber %s: %v", sub.id, errs[i])
		h.Unsubscribe(sub)
	}
	h.metrics.ObserveBroadcast(event, len(targets)-failed, failed, elapsed)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.observeCount(0, "shutdown")
}

func (h *Hub) observeCount(n int, event string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ActiveSubscribers.Set(float64(n))
	h.metrics.SubscriberEvents.WithLabelValues(event).Inc()
}
