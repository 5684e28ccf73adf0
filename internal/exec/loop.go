package exec

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Executor delivers callbacks on a caller-chosen execution context.
type Executor interface {
	// Post queues fn and reports whether it was accepted.
	Post(fn func()) bool
}

// Loop runs posted functions one at a time, in order, on a single goroutine.
// Everything posted to the same Loop is serialized, so state touched only
// from posted functions needs no locking.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	wg     sync.WaitGroup
}

func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

// Close stops accepting new work, runs what is already queued and waits for
// the loop goroutine to exit. It must not be called from a posted function.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	l.wg.Wait()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		invoke(fn)
	}
}

func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("op", "exec/loop").Msgf("recovered panic in posted function: %v", r)
		}
	}()
	fn()
}
