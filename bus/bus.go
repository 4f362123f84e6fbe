package bus

import (
	"sync"

	"github.com/packgate/packgate"
)

// Bus is the in-process publish/subscribe channel connecting the drift
// monitor, the packer's validation step, and the cognitive state machine,
// so none of them couple to another's state.
//
// Delivery guarantees: signals for one session are delivered to that
// session's single consumer in publish order. Across sessions there is no
// ordering guarantee, and none is needed - each session owns an
// independent SessionState.
//
// Publishing never blocks: each session has an unbounded queue behind its
// subscription, so a slow consumer cannot stall the worker's observer.
// Signals published before Subscribe is called are buffered and delivered
// once the consumer attaches.
//
// A closed session stays closed: CloseSession tombstones the session ID,
// later publishes for it are dropped, and later Subscribe calls receive a
// closed channel.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*sessionQueue
	done     map[string]struct{}
	closed   bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		sessions: make(map[string]*sessionQueue),
		done:     make(map[string]struct{}),
	}
}

// Publish routes a signal to its session's queue. Signals published after
// Close, or for a session already closed with CloseSession, are dropped.
func (b *Bus) Publish(sig packgate.DriftSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, gone := b.done[sig.SessionID]; gone {
		return
	}
	b.sessionLocked(sig.SessionID).send(sig)
}

// Subscribe returns the receive channel for a session. The bus supports a
// single consumer per session; calling Subscribe twice for the same session
// returns the same channel. Subscribing to a closed session, or after the
// bus itself closed, returns an already-closed channel.
func (b *Bus) Subscribe(sessionID string) <-chan packgate.DriftSignal {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, gone := b.done[sessionID]
	if b.closed || gone {
		ch := make(chan packgate.DriftSignal)
		close(ch)
		return ch
	}
	return b.sessionLocked(sessionID).out
}

// CloseSession closes a session's queue and tombstones its ID. The
// consumer's channel closes after all pending signals drain; the session
// cannot be reopened.
func (b *Bus) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done[sessionID] = struct{}{}
	if q, ok := b.sessions[sessionID]; ok {
		q.close()
		delete(b.sessions, sessionID)
	}
}

// Close shuts down every session queue.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, q := range b.sessions {
		q.close()
		delete(b.sessions, id)
	}
}

// sessionLocked returns (or lazily creates) the session's queue. Must be
// called with b.mu held, and never for a tombstoned session.
func (b *Bus) sessionLocked(sessionID string) *sessionQueue {
	q, ok := b.sessions[sessionID]
	if !ok {
		q = newSessionQueue()
		b.sessions[sessionID] = q
	}
	return q
}

// sessionQueue buffers one session's signals between its producers and its
// single consumer. Sends append under the lock and nudge the drain
// goroutine through a one-slot wake channel, so publishing never waits on
// the consumer.
type sessionQueue struct {
	mu      sync.Mutex
	pending []packgate.DriftSignal
	closed  bool
	wake    chan struct{}
	out     chan packgate.DriftSignal
}

func newSessionQueue() *sessionQueue {
	q := &sessionQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan packgate.DriftSignal),
	}
	go q.drain()
	return q
}

// send enqueues a signal. Never blocks; signals sent after close are
// dropped.
func (q *sessionQueue) send(sig packgate.DriftSignal) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, sig)
	q.mu.Unlock()
	q.nudge()
}

// close marks the queue closed. Safe to call multiple times; the output
// channel closes once pending signals drain.
func (q *sessionQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.nudge()
}

func (q *sessionQueue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain moves pending signals to the consumer in publish order. A spurious
// wake just loops; a missed one cannot happen because nudge always follows
// the append.
func (q *sessionQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				close(q.out)
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		sig := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.out <- sig
	}
}
