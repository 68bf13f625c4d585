package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// PerfSnapshot is the JSON body of /api/perf/latency.
type PerfSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Routes      []RouteStats `json:"routes"`
	Push        PushStats    `json:"push"`
}

// RouteStats summarises one method and route pattern. Requests and Errors are
// totals since start; the latency fields cover the last WindowSize requests.
type RouteStats struct {
	Method   string  `json:"method"`
	Route    string  `json:"route"`
	Requests int     `json:"requests"`
	Errors   int     `json:"errors"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// PushStats summarises realtime broadcast passes. Fan-out time is measured
// from the first write to the last subscriber finishing.
type PushStats struct {
	Broadcasts  int     `json:"broadcasts"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	FanoutP50MS float64 `json:"fanout_p50_ms"`
	FanoutP95MS float64 `json:"fanout_p95_ms"`
	FanoutMaxMS float64 `json:"fanout_max_ms"`
}

type routeKey struct {
	method string
	route  string
}

type routeCounters struct {
	requests int
	errors   int
	recent   durationSamples
}

// durationSamples keeps the newest limit observations, oldest first.
type durationSamples struct {
	limit  int
	values []time.Duration
}

func (s *durationSamples) add(d time.Duration) {
	if len(s.values) == s.limit {
		copy(s.values, s.values[1:])
		s.values = s.values[:len(s.values)-1]
	}
	s.values = append(s.values, d)
}

func (s *durationSamples) sorted() []time.Duration {
	out := append([]time.Duration(nil), s.values...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// nearestRank returns the q-quantile of sorted using the nearest-rank rule.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

type perfWindow struct {
	mu     sync.Mutex
	size   int
	routes map[routeKey]*routeCounters

	broadcasts int
	delivered  int
	failed     int
	fanout     durationSamples
}

func newPerfWindow(size int) *perfWindow {
	if size <= 0 {
		size = 256
	}
	return &perfWindow{
		size:   size,
		routes: make(map[routeKey]*routeCounters),
		fanout: durationSamples{limit: size},
	}
}

func (w *perfWindow) observeRequest(method, route string, status int, d time.Duration) {
	if route == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	key := routeKey{method: method, route: route}
	rc, ok := w.routes[key]
	if !ok {
		rc = &routeCounters{recent: durationSamples{limit: w.size}}
		w.routes[key] = rc
	}
	rc.requests++
	if status >= 500 {
		rc.errors++
	}
	rc.recent.add(d)
}

func (w *perfWindow) observeBroadcast(delivered, failed int, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcasts++
	w.delivered += delivered
	w.failed += failed
	w.fanout.add(d)
}

func (w *perfWindow) snapshot() PerfSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	routes := make([]RouteStats, 0, len(w.routes))
	for key, rc := range w.routes {
		sorted := rc.recent.sorted()
		routes = append(routes, RouteStats{
			Method:   key.method,
			Route:    key.route,
			Requests: rc.requests,
			Errors:   rc.errors,
			P50MS:    millis(nearestRank(sorted, 0.50)),
			P95MS:    millis(nearestRank(sorted, 0.95)),
			MaxMS:    millis(nearestRank(sorted, 1)),
		})
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Route != routes[j].Route {
			return routes[i].Route < routes[j].Route
		}
		return routes[i].Method < routes[j].Method
	})

	fanout := w.fanout.sorted()
	return PerfSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Routes:      routes,
		Push: PushStats{
			Broadcasts:  w.broadcasts,
			Delivered:   w.delivered,
			Failed:      w.failed,
			FanoutP50MS: millis(nearestRank(fanout, 0.50)),
			FanoutP95MS: millis(nearestRank(fanout, 0.95)),
			FanoutMaxMS: millis(nearestRank(fanout, 1)),
		},
	}
}
