package framesource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// State is the playback state of a Source.
type State int

const (
	StateIdle State = iota
	StatePrepared
	StatePlaying
	StatePaused
	StateSeeking
	StateEnded
	StateFailed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// terminal reports whether the state closes the Done channel.
func (s State) terminal() bool {
	return s == StateEnded || s == StateFailed || s == StateReleased
}

// pumpFunc runs one pump task. It returns the state to enter when it ends
// on its own, or an error wrapping context.Canceled when it was cancelled.
type pumpFunc func(ctx context.Context, gen uint64) (State, error)

// controller supervises the pump. At most one pump task exists at any
// time: every control operation cancels the running task and waits for it
// to return before issuing decoder commands or starting a new one.
//
// ctl serializes control operations and is held across the join. The
// pump only ever takes stateMu, so it can always finish while a control
// operation waits for it.
type controller struct {
	ctl sync.Mutex

	cancel context.CancelFunc
	joined chan struct{}
	gen    uint64
	active atomic.Int32

	stateMu sync.Mutex
	state   State
	err     error
	done    chan struct{}
}

func newController() *controller {
	return &controller{done: make(chan struct{})}
}

// stopPump cancels the running pump and waits for it. Must hold ctl.
func (c *controller) stopPump() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.joined
	c.cancel = nil
	c.joined = nil
}

// startPump launches fn as the new pump task. Must hold ctl, after stopPump.
func (c *controller) startPump(fn pumpFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	joined := make(chan struct{})
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.joined = joined

	c.active.Add(1)
	go func() {
		defer close(joined)
		defer c.active.Add(-1)
		st, err := fn(ctx, gen)
		if errors.Is(err, context.Canceled) {
			return
		}
		c.setState(st, err)
	}()
}

// generation returns the number of pump tasks started so far. Must hold ctl.
func (c *controller) generation() uint64 {
	return c.gen
}

// activePumps returns how many pump goroutines are running.
func (c *controller) activePumps() int {
	return int(c.active.Load())
}

func (c *controller) setState(st State, err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateReleased {
		return
	}
	c.state = st
	if err != nil {
		c.err = err
	}
	if st.terminal() {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

// rearm replaces a closed Done channel so a restarted playback can be
// awaited again.
func (c *controller) rearm() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	select {
	case <-c.done:
		c.done = make(chan struct{})
	default:
	}
}

func (c *controller) current() (State, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state, c.err
}

func (c *controller) doneChan() <-chan struct{} {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.done
}
