package exec

import "sync"

// Inline runs posted functions on the posting goroutine. A Post made while
// another goroutine (or a posted function) is draining is queued and run by
// that drainer, so delivery stays serialized and never nests.
type Inline struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func (in *Inline) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	in.mu.Lock()
	in.queue = append(in.queue, fn)
	if in.draining {
		in.mu.Unlock()
		return true
	}
	in.draining = true
	in.mu.Unlock()

	for {
		in.mu.Lock()
		if len(in.queue) == 0 {
			in.draining = false
			in.mu.Unlock()
			return true
		}
		next := in.queue[0]
		in.queue[0] = nil
		in.queue = in.queue[1:]
		in.mu.Unlock()
		invoke(next)
	}
}
