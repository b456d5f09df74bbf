package framesource

import (
	"context"
	"sync"

	"github.com/user/glhdr/pkg/media"
)

// Event is one asynchronous decoder notification.
type Event interface {
	event()
}

// InputBufferReady reports an input buffer the client may fill.
type InputBufferReady struct {
	Index int
}

// OutputBufferReady reports a decoded buffer the client must release.
type OutputBufferReady struct {
	Index int
	Info  media.BufferInfo
}

// OutputFormatChanged reports a new decoder output format.
type OutputFormatChanged struct {
	Format media.Format
}

// DecoderFailed reports an asynchronous decoder failure. It is terminal.
type DecoderFailed struct {
	Err error
}

func (InputBufferReady) event()    {}
func (OutputBufferReady) event()   {}
func (OutputFormatChanged) event() {}
func (DecoderFailed) event()       {}

// eventQueue is an unbounded FIFO with a single consumer. push never blocks,
// so the decoder's callback goroutine is never held up by the pump.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// receive pops the oldest event, waiting for one if the queue is empty.
// An event is never lost to cancellation: either it is returned or it stays
// queued.
func (q *eventQueue) receive(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// reset drops every queued event. Only valid after the decoder was flushed,
// since it discards buffer ownership.
func (q *eventQueue) reset() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	select {
	case <-q.signal:
	default:
	}
	return n
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// callback forwards decoder notifications into the queue.
type callback struct {
	q *eventQueue
}

func (c callback) OnInputBufferAvailable(index int) {
	c.q.push(InputBufferReady{Index: index})
}

func (c callback) OnOutputBufferAvailable(index int, info media.BufferInfo) {
	c.q.push(OutputBufferReady{Index: index, Info: info})
}

func (c callback) OnOutputFormatChanged(format media.Format) {
	c.q.push(OutputFormatChanged{Format: format})
}

func (c callback) OnError(err error) {
	c.q.push(DecoderFailed{Err: err})
}
