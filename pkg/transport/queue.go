package transport

import (
	"sync"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Queue hands replies and events to a Handler in arrival order from a
// single goroutine, so that a handler may issue requests on the same
// transport. The queue is unbounded.
type Queue struct {
	mu      sync.Mutex
	handler Handler
	items   []delivery
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// delivery is one message queued for the handler.
type delivery struct {
	reply *wire.Reply
	event *wire.EventMessage
}

// NewQueue creates a queue and starts its delivery goroutine.
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// SetHandler sets the receiver. Messages queued without a handler are dropped.
func (q *Queue) SetHandler(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

// Reply queues a reply.
func (q *Queue) Reply(r *wire.Reply) {
	q.push(delivery{reply: r})
}

// Event queues an event.
func (q *Queue) Event(m *wire.EventMessage) {
	q.push(delivery{event: m})
}

// Len returns the number of undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close delivers what is queued and stops the goroutine. It must not be
// called from the handler.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.wake)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) push(d delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.items = append(q.items, d)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			d := q.items[0]
			q.items[0] = delivery{}
			q.items = q.items[1:]
			h := q.handler
			q.mu.Unlock()

			switch {
			case h == nil:
			case d.reply != nil:
				h.HandleReply(d.reply)
			default:
				h.HandleEvent(d.event)
			}
		}
	}
}
