package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/jacksongoode/decay/internal/metrics"
)

func TestRunHeartbeat_EnqueuesPings(t *testing.T) {
	q := newSendQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runHeartbeat(ctx, q, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pings := 0; pings < 3; {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for pings, got %d", pings)
		default:
		}
		for _, f := range drainQueue(q) {
			if f.kind == framePing {
				pings++
			}
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat did not stop on cancel")
	}
}

func TestRunHeartbeat_StopsWhenQueueCloses(t *testing.T) {
	q := newSendQueue()
	q.close()

	done := make(chan struct{})
	go func() {
		runHeartbeat(context.Background(), q, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat did not stop after queue close")
	}
}

func TestRunIdleCheck_EvictsIdleConnection(t *testing.T) {
	clock := testClockAt(1000)
	reg := newRegistry(clock.fn)
	m := metrics.New()
	q := newSendQueue()
	reg.register(1, q)

	clock.advance(61)

	evicted := make(chan struct{})
	go runIdleCheck(context.Background(), reg, 1, m, time.Millisecond, 60*time.Second, func() {
		close(evicted)
	})

	select {
	case <-evicted:
	case <-time.After(2 * time.Second):
		t.Fatalf("idle connection was not evicted")
	}

	frames := drainQueue(q)
	if len(frames) != 1 || frames[0].kind != frameClose {
		t.Fatalf("expected a close frame before eviction, got %v", frames)
	}
	if m.Get(metrics.IdleEvictions) != 1 {
		t.Fatalf("expected 1 idle eviction counted, got %d", m.Get(metrics.IdleEvictions))
	}
}

func TestRunIdleCheck_ActivityPreventsEviction(t *testing.T) {
	clock := testClockAt(1000)
	reg := newRegistry(clock.fn)
	m := metrics.New()
	reg.register(1, newSendQueue())

	// Stay just under the threshold: 60s exactly is not "longer than".
	clock.advance(60)
	reg.touch(1)
	clock.advance(60)

	ctx, cancel := context.WithCancel(context.Background())
	evicted := make(chan struct{})
	go func() {
		runIdleCheck(ctx, reg, 1, m, time.Millisecond, 60*time.Second, func() {
			close(evicted)
		})
	}()

	select {
	case <-evicted:
		t.Fatalf("connection evicted despite recent activity")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()

	if m.Get(metrics.IdleEvictions) != 0 {
		t.Fatalf("expected no evictions, got %d", m.Get(metrics.IdleEvictions))
	}
}

func TestRunIdleCheck_StopsWhenConnectionGone(t *testing.T) {
	reg := newRegistry(nil)
	m := metrics.New()

	done := make(chan struct{})
	go func() {
		runIdleCheck(context.Background(), reg, 7, m, time.Millisecond, time.Hour, func() {
			t.Error("evict must not run for a missing connection")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("idle check did not stop for a missing connection")
	}
}
