package signaling

import (
	"fmt"
	"sync"
	"testing"
)

func TestSendQueue_FIFO(t *testing.T) {
	q := newSendQueue()
	for i := 0; i < 10; i++ {
		if !q.enqueue(frame{kind: frameText, payload: []byte{byte(i)}}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	for i := 0; i < 10; i++ {
		f, ok := q.dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue closed early", i)
		}
		if f.payload[0] != byte(i) {
			t.Fatalf("expected frame %d, got %d", i, f.payload[0])
		}
	}
}

func TestSendQueue_CloseDrainsPendingFrames(t *testing.T) {
	q := newSendQueue()
	q.enqueue(frame{kind: frameText, payload: []byte("a")})
	q.enqueue(frame{kind: frameClose})
	q.close()

	if q.enqueue(frame{kind: frameText, payload: []byte("late")}) {
		t.Fatalf("enqueue after close should report false")
	}

	f, ok := q.dequeue()
	if !ok || string(f.payload) != "a" {
		t.Fatalf("expected pending text frame after close, got ok=%v", ok)
	}
	f, ok = q.dequeue()
	if !ok || f.kind != frameClose {
		t.Fatalf("expected pending close frame after close, got ok=%v kind=%v", ok, f.kind)
	}
	if _, ok := q.dequeue(); ok {
		t.Fatalf("expected drained queue to report closed")
	}
}

func TestSendQueue_CloseUnblocksConsumer(t *testing.T) {
	q := newSendQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := q.dequeue(); !ok {
				return
			}
		}
	}()
	q.close()
	<-done
}

func TestSendQueue_PerProducerOrderUnderContention(t *testing.T) {
	const producers = 8
	const perProducer = 200

	q := newSendQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.enqueue(frame{kind: frameText, payload: []byte(fmt.Sprintf("%d:%d", p, i))})
			}
		}(p)
	}

	consumed := make(chan []byte, producers*perProducer)
	go func() {
		for {
			f, ok := q.dequeue()
			if !ok {
				close(consumed)
				return
			}
			consumed <- f.payload
		}
	}()

	wg.Wait()
	q.close()

	// The dispatcher must observe each producer's frames in enqueue order.
	next := make([]int, producers)
	total := 0
	for payload := range consumed {
		var p, i int
		if _, err := fmt.Sscanf(string(payload), "%d:%d", &p, &i); err != nil {
			t.Fatalf("bad payload %q: %v", payload, err)
		}
		if i != next[p] {
			t.Fatalf("producer %d: expected frame %d next, got %d", p, next[p], i)
		}
		next[p]++
		total++
	}
	if total != producers*perProducer {
		t.Fatalf("expected %d frames, got %d", producers*perProducer, total)
	}
}
