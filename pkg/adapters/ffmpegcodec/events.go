package ffmpegcodec

import "sync"

// eventQueue runs callbacks one at a time on its own goroutine. Pushing
// never blocks, so the frame reader keeps draining ffmpeg while the client
// is slow.
type eventQueue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1), done: make(chan struct{})}
}

func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.closed {
			q.fns = nil
			q.mu.Unlock()
			return
		}
		if len(q.fns) == 0 {
			q.mu.Unlock()
			<-q.signal
			continue
		}
		fn := q.fns[0]
		q.fns[0] = nil
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
	}
}

// barrier waits until every callback pushed so far has run or been
// dropped. It must not be called from a callback.
func (q *eventQueue) barrier() {
	reached := make(chan struct{})
	q.push(func() { close(reached) })
	select {
	case <-reached:
	case <-q.done:
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
