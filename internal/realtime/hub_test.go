package realtime

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/protocol"
	"github.com/antoniostano/missioncontrol/internal/store"
)

type fakeConn struct {
	mu       sync.Mutex
	fail     bool
	closed   bool
	messages [][]byte
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub() *Hub {
	metrics := observability.NewMetrics("test_realtime_" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	return NewHub(time.Second, metrics)
}

func TestBroadcastWithNoSubscribersIsNoop(t *testing.T) {
	h := newTestHub()
	h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: 1}))
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
}

func TestBroadcastIsolatesFailingSubscriber(t *testing.T) {
	h := newTestHub()
	good1, bad, good2 := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	h.Subscribe(good1)
	badSub := h.Subscribe(bad)
	h.Subscribe(good2)

	h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: 9, Status: "Built"}))

	for name, c := range map[string]*fakeConn{"good1": good1, "good2": good2} {
		if got := len(c.received()); got != 1 {
			t.Fatalf("%s received %d messages, want 1", name, got)
		}
		if c.isClosed() {
			t.Fatalf("%s closed, want open", name)
		}
	}
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}
	if badSub.State() != StateClosed {
		t.Fatalf("failing subscriber state = %s, want closed", badSub.State())
	}
	if !bad.isClosed() {
		t.Fatalf("failing connection not closed")
	}

	h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: 9, Status: "New"}))
	if got := len(good1.received()); got != 2 {
		t.Fatalf("good1 received %d messages after second broadcast, want 2", got)
	}

	push := h.metrics.SnapshotPerf().Push
	if push.Broadcasts != 2 || push.Delivered != 4 || push.Failed != 1 {
		t.Fatalf("push stats = %+v, want 2 broadcasts, 4 delivered, 1 failed", push)
	}
}

func TestBroadcastEncodesOnce(t *testing.T) {
	h := newTestHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Subscribe(a)
	h.Subscribe(b)

	h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: 2, Text: "fix bug", Status: "Built", Type: "Feature"}))

	ma, mb := a.received(), b.received()
	if len(ma) != 1 || len(mb) != 1 {
		t.Fatalf("received %d/%d messages, want 1/1", len(ma), len(mb))
	}
	if string(ma[0]) != string(mb[0]) {
		t.Fatalf("payloads differ: %s vs %s", ma[0], mb[0])
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{}
	sub := h.Subscribe(c)
	if sub.State() != StateOpen {
		t.Fatalf("State() = %s, want open", sub.State())
	}

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
	if sub.State() != StateClosed {
		t.Fatalf("State() = %s, want closed", sub.State())
	}
	h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: 1}))
	if got := len(c.received()); got != 0 {
		t.Fatalf("unsubscribed connection received %d messages, want 0", got)
	}
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	h := newTestHub()
	c1, c2 := &fakeConn{}, &fakeConn{}
	s1 := h.Subscribe(c1)
	h.Subscribe(c2)

	h.Close()

	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
	if !c1.isClosed() || !c2.isClosed() {
		t.Fatalf("connections not closed on shutdown")
	}
	if s1.State() != StateClosed {
		t.Fatalf("State() = %s, want closed", s1.State())
	}

	late := h.Subscribe(&fakeConn{})
	if late.State() != StateClosed {
		t.Fatalf("subscribe after Close state = %s, want closed", late.State())
	}
	if h.Count() != 0 {
		t.Fatalf("Count() after late subscribe = %d, want 0", h.Count())
	}
}

func TestConcurrentSubscribeUnsubscribeBroadcast(t *testing.T) {
	h := newTestHub()
	stable := &fakeConn{}
	h.Subscribe(stable)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				sub := h.Subscribe(&fakeConn{fail: j%5 == 0})
				h.Broadcast(protocol.NewTaskUpdated(store.Task{ID: int64(j)}))
				h.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()

	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (only the stable subscriber)", h.Count())
	}
	if got := len(stable.received()); got != 16*25 {
		t.Fatalf("stable subscriber received %d messages, want %d", got, 16*25)
	}
}
