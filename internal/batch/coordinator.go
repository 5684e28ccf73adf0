package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/polyfetch/internal/exec"
	"github.com/tanq16/polyfetch/internal/fetch"
	"github.com/tanq16/polyfetch/internal/utils"
)

var (
	ErrAddAfterStart  = fmt.Errorf("%w: can't add files to a batch after starting", fetch.ErrInvalidUsage)
	ErrAlreadyStarted = fmt.Errorf("%w: batch has already been started", fetch.ErrInvalidUsage)
)

type State int

const (
	StateNotStarted State = iota
	StateDownloading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateDownloading:
		return "downloading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is one named file of a batch.
type Entry struct {
	Name string
	URL  string
	// Contents holds the fetched body once Done reports true.
	Contents []byte
	done     bool
}

func (e *Entry) Done() bool { return e.done }

// Listener is notified once per batch, on the executor passed to Start, when
// every entry succeeded or the first one failed.
type Listener interface {
	OnDownloadFinished(c *Coordinator)
}

type ListenerFunc func(c *Coordinator)

func (f ListenerFunc) OnDownloadFinished(c *Coordinator) { f(c) }

type Options struct {
	Client       utils.HTTPDoer
	FetchTimeout time.Duration // per entry, 0 disables
	BatchTimeout time.Duration // whole batch, 0 disables
}

// Coordinator downloads a fixed set of entries concurrently and reports once.
//
// Add and Start are called by the owner. Fetch results are handled on the
// executor given to Start, which serializes them, so the aggregation below
// runs without locks. Accessors are meant for use after the listener fired.
type Coordinator struct {
	opts     Options
	started  atomic.Bool
	state    State
	entries  []*Entry
	pending  int
	executor exec.Executor
	listener Listener
	cancel   context.CancelFunc
	err      error
}

func New(opts Options) *Coordinator {
	return &Coordinator{opts: opts}
}

// Add queues a file for download. Only valid before Start.
func (c *Coordinator) Add(name, url string) error {
	if c.started.Load() {
		return ErrAddAfterStart
	}
	log.Debug().Str("op", "batch/coordinator").Msgf("Adding %s from %s", name, url)
	c.entries = append(c.entries, &Entry{Name: name, URL: url})
	return nil
}

// Start launches one request per entry and returns without waiting. The
// listener is called on executor exactly once.
func (c *Coordinator) Start(ctx context.Context, executor exec.Executor, listener Listener) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.executor = executor
	c.listener = listener
	c.state = StateDownloading
	c.pending = len(c.entries)

	if c.opts.BatchTimeout > 0 {
		ctx, c.cancel = context.WithTimeout(ctx, c.opts.BatchTimeout)
	} else {
		ctx, c.cancel = context.WithCancel(ctx)
	}

	if len(c.entries) == 0 {
		executor.Post(func() { c.finish(StateSuccess, nil) })
		return nil
	}

	var opts []fetch.Option
	if c.opts.Client != nil {
		opts = append(opts, fetch.WithClient(c.opts.Client))
	}
	if c.opts.FetchTimeout > 0 {
		opts = append(opts, fetch.WithTimeout(c.opts.FetchTimeout))
	}
	for _, entry := range c.entries {
		listener := fetch.ListenerFuncs{
			Success: func(body []byte) { c.onSuccess(entry, body) },
			Failure: func(statusCode int, message string, cause error) {
				c.onFailure(entry, statusCode, message, cause)
			},
		}
		req := fetch.NewRequestOrReport(entry.URL, executor, listener, opts...)
		if req == nil {
			continue
		}
		if err := req.Send(ctx); err != nil {
			// a fresh request cannot have been sent already
			executor.Post(func() { c.onFailure(entry, 0, err.Error(), err) })
		}
	}
	return nil
}

func (c *Coordinator) onSuccess(entry *Entry, body []byte) {
	if c.state != StateDownloading {
		return
	}
	log.Debug().Str("op", "batch/coordinator").Msgf("Finished downloading %s from %s", entry.Name, entry.URL)
	if !entry.done {
		entry.Contents = body
		entry.done = true
		c.pending--
	}
	if c.pending == 0 {
		c.finish(StateSuccess, nil)
	}
}

func (c *Coordinator) onFailure(entry *Entry, statusCode int, message string, cause error) {
	if c.state != StateDownloading {
		return
	}
	log.Error().Str("op", "batch/coordinator").Err(cause).
		Msgf("Error downloading %s from %s. Status %d, message: %s", entry.Name, entry.URL, statusCode, message)
	c.finish(StateError, fmt.Errorf("%s: %w", entry.Name, fetch.FailureError(message, cause)))
}

func (c *Coordinator) finish(state State, err error) {
	c.state = state
	c.err = err
	c.cancel()
	c.executor.Post(func() { c.listener.OnDownloadFinished(c) })
}

func (c *Coordinator) State() State { return c.state }

// IsError reports whether the batch ended in failure.
func (c *Coordinator) IsError() bool { return c.state == StateError }

// Err returns the first failure, or nil.
func (c *Coordinator) Err() error { return c.err }

func (c *Coordinator) EntryCount() int { return len(c.entries) }

func (c *Coordinator) Entry(index int) *Entry { return c.entries[index] }
