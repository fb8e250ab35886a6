package metrics

import "sync"

// Counter names used across the signaling server. The drop reasons mirror the
// routing error taxonomy: a dropped frame is never an error the sender sees,
// so the counters are the only place the drops are visible.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	IdleEvictions     = "idle_evictions"
	WriteFailures     = "write_failures"

	MessagesRouted   = "messages_routed"
	RosterBroadcasts = "roster_broadcasts"

	DropReasonMalformed     = "dropped_malformed"
	DropReasonUnknownTarget = "dropped_unknown_target"
	DropReasonServerOnly    = "dropped_server_only"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// It keeps the routing and liveness logic observable and testable without
// pulling a metrics client into the core; the counters are exposed to
// Prometheus via PrometheusHandler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
