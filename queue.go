// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import "sync"

// eventQueue is an unbounded FIFO of events with a single wakeup token.
// push never blocks, so the dispatcher cannot be held up by a consumer that
// stops reading. Once closed, push refuses events and buffered ones are
// discarded.
type eventQueue struct {
	mu     sync.Mutex
	buf    []*Event
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends ev and returns the new length, or false if q is closed.
func (q *eventQueue) push(ev *Event) (int, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, false
	}
	q.buf = append(q.buf, ev)
	n := len(q.buf)
	q.mu.Unlock()

	q.signal()
	return n, true
}

// pop removes the oldest event. It re-arms the wakeup token while events
// remain so that a second waiter is not left sleeping.
func (q *eventQueue) pop() (*Event, bool) {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	ev := q.buf[0]
	q.buf[0] = nil
	q.buf = q.buf[1:]
	if len(q.buf) == 0 {
		q.buf = nil
	}
	more := len(q.buf) > 0
	q.mu.Unlock()

	if more {
		q.signal()
	}
	return ev, true
}

func (q *eventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// close refuses further events and drops the buffered ones.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.buf = nil
	q.mu.Unlock()
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
