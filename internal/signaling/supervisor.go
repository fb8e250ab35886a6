package signaling

import (
	"context"
	"time"

	"github.com/jacksongoode/decay/internal/metrics"
)

// The liveness supervisor runs two periodic tasks per connection, both scoped
// to the connection's lifetime through a context that the cleanup path
// cancels before the registry entry is removed.

// runHeartbeat enqueues a ping frame on the connection's outbound queue every
// interval. It stops when the context is cancelled or the queue is closed
// (the connection is already gone).
func runHeartbeat(ctx context.Context, q *sendQueue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.enqueue(frame{kind: framePing}) {
				return
			}
		}
	}
}

// runIdleCheck polls the connection's last-activity timestamp every checkEvery
// and force-closes the connection once it has been idle longer than
// idleTimeout. This is the only path that closes a connection without a
// client-initiated close frame; evict must run the same cleanup as a normal
// disconnect.
func runIdleCheck(ctx context.Context, reg *registry, id uint64, m *metrics.Metrics, checkEvery, idleTimeout time.Duration, evict func()) {
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last, ok := reg.lastActivity(id)
			if !ok {
				return
			}
			if reg.clock().Sub(last) > idleTimeout {
				m.Inc(metrics.IdleEvictions)
				if q, ok := reg.lookup(id); ok {
					q.enqueue(frame{kind: frameClose})
				}
				evict()
				return
			}
		}
	}
}
