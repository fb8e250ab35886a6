package signaling

import "sync"

type frameKind int

const (
	frameText frameKind = iota
	framePing
	frameClose
)

// frame is one outbound item for a connection's dispatcher.
type frame struct {
	kind    frameKind
	payload []byte
}

// sendQueue is an unbounded FIFO of outbound frames with a single consumer:
// the connection's write pump. Producers (router, supervisor, roster
// broadcast) never block. The queue is unbounded; a consumer that stops
// draining grows it until the connection is torn down.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	frames []frame
}

func newSendQueue() *sendQueue {
	q := &sendQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// enqueue appends a frame. It reports false once the queue is closed, which
// tells periodic producers (the heartbeat timer) the connection is gone.
func (q *sendQueue) enqueue(f frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.frames = append(q.frames, f)
	q.notEmpty.Signal()
	return true
}

// dequeue blocks until a frame is available or the queue is closed and fully
// drained. Frames enqueued before close are still delivered in order.
func (q *sendQueue) dequeue() (frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return frame{}, false
	}
	f := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames[len(q.frames)-1] = frame{}
	q.frames = q.frames[:len(q.frames)-1]
	return f, true
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
