package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/polyfetch/internal/exec"
	"github.com/tanq16/polyfetch/internal/fetch"
)

// finishRecorder counts finish notifications and signals the first one.
type finishRecorder struct {
	calls atomic.Int32
	done  chan struct{}
}

func newFinishRecorder() *finishRecorder {
	return &finishRecorder{done: make(chan struct{})}
}

func (f *finishRecorder) OnDownloadFinished(c *Coordinator) {
	if f.calls.Add(1) == 1 {
		close(f.done)
	}
}

func (f *finishRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch never finished")
	}
}

// drain makes sure everything already queued on the loop has run.
func drain(t *testing.T, loop *exec.Loop) {
	t.Helper()
	ch := make(chan struct{})
	require.True(t, loop.Post(func() { close(ch) }))
	<-ch
}

func TestCoordinator_AllSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			w.Write([]byte("A"))
		case "/b":
			w.Write([]byte("B"))
		}
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	require.NoError(t, c.Add("a.obj", srv.URL+"/a"))
	require.NoError(t, c.Add("b.obj", srv.URL+"/b"))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)
	drain(t, loop)

	assert.EqualValues(t, 1, rec.calls.Load())
	assert.False(t, c.IsError())
	assert.Equal(t, StateSuccess, c.State())
	assert.NoError(t, c.Err())
	require.Equal(t, 2, c.EntryCount())
	assert.Equal(t, "a.obj", c.Entry(0).Name)
	assert.Equal(t, []byte("A"), c.Entry(0).Contents)
	assert.Equal(t, []byte("B"), c.Entry(1).Contents)
	assert.True(t, c.Entry(1).Done())
}

func TestCoordinator_ManyEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// stagger completions so arrival order differs from add order
		if len(r.URL.Path)%2 == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{Client: srv.Client()})
	for i := 0; i < 25; i++ {
		require.NoError(t, c.Add(fmt.Sprintf("f%d", i), fmt.Sprintf("%s/file/%d", srv.URL, i)))
	}
	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)
	drain(t, loop)

	assert.EqualValues(t, 1, rec.calls.Load())
	assert.False(t, c.IsError())
	for i := 0; i < c.EntryCount(); i++ {
		assert.Equal(t, fmt.Sprintf("/file/%d", i), string(c.Entry(i).Contents))
	}
}

func TestCoordinator_FailFast(t *testing.T) {
	bArrived := make(chan struct{})
	cancelled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			<-bArrived
			http.NotFound(w, r)
		case "/b":
			close(bArrived)
			// held open until the batch gives up on it
			<-r.Context().Done()
			close(cancelled)
		}
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	require.NoError(t, c.Add("a.obj", srv.URL+"/a"))
	require.NoError(t, c.Add("b.obj", srv.URL+"/b"))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("outstanding request was not cancelled")
	}
	drain(t, loop)

	assert.EqualValues(t, 1, rec.calls.Load())
	assert.True(t, c.IsError())
	assert.Equal(t, StateError, c.State())

	var se *fetch.StatusError
	require.ErrorAs(t, c.Err(), &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, c.Entry(0).Done())
	assert.Nil(t, c.Entry(0).Contents)
}

func TestCoordinator_LateSuccessIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	require.NoError(t, c.Add("a.obj", srv.URL+"/a"))
	require.NoError(t, c.Add("b.obj", srv.URL+"/b"))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)

	// deliver results the way a slow sibling would, after the batch ended
	loop.Post(func() { c.onSuccess(c.Entry(1), []byte("B")) })
	loop.Post(func() { c.onSuccess(c.Entry(0), []byte("A")) })
	loop.Post(func() { c.onFailure(c.Entry(0), 503, "late", nil) })
	drain(t, loop)
	drain(t, loop)

	assert.EqualValues(t, 1, rec.calls.Load())
	assert.True(t, c.IsError())
	assert.Nil(t, c.Entry(1).Contents)
}

func TestCoordinator_MalformedURLFailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	require.NoError(t, c.Add("good", srv.URL))
	require.NoError(t, c.Add("bad", "::not-a-url"))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)
	drain(t, loop)

	assert.EqualValues(t, 1, rec.calls.Load())
	assert.True(t, c.IsError())
	var ue *fetch.URLError
	assert.ErrorAs(t, c.Err(), &ue)
}

func TestCoordinator_BatchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{BatchTimeout: 50 * time.Millisecond})
	require.NoError(t, c.Add("slow", srv.URL))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)

	assert.True(t, c.IsError())
	assert.True(t, errors.Is(c.Err(), context.DeadlineExceeded))
}

func TestCoordinator_CallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	loop := exec.NewLoop()
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Options{})
	require.NoError(t, c.Add("slow", srv.URL))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(ctx, loop, rec))
	cancel()
	rec.wait(t)

	assert.True(t, c.IsError())
	assert.ErrorIs(t, c.Err(), context.Canceled)
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))
	rec.wait(t)

	assert.False(t, c.IsError())
	assert.Equal(t, StateSuccess, c.State())
	assert.Equal(t, 0, c.EntryCount())
}

func TestCoordinator_InvalidUsage(t *testing.T) {
	loop := exec.NewLoop()
	defer loop.Close()

	c := New(Options{})
	assert.Equal(t, StateNotStarted, c.State())
	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), loop, rec))

	err := c.Add("late.obj", "http://x/late")
	assert.ErrorIs(t, err, ErrAddAfterStart)
	assert.ErrorIs(t, err, fetch.ErrInvalidUsage)

	err = c.Start(context.Background(), loop, rec)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, err, fetch.ErrInvalidUsage)

	rec.wait(t)
	assert.Equal(t, 0, c.EntryCount())
}

func TestCoordinator_ListenerFunc(t *testing.T) {
	loop := exec.NewLoop()
	defer loop.Close()

	got := make(chan *Coordinator, 1)
	c := New(Options{})
	require.NoError(t, c.Start(context.Background(), loop, ListenerFunc(func(c *Coordinator) { got <- c })))

	select {
	case finished := <-got:
		assert.Same(t, c, finished)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not-started", StateNotStarted.String())
	assert.Equal(t, "downloading", StateDownloading.String())
	assert.Equal(t, "success", StateSuccess.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestCoordinator_InlineExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var in exec.Inline
	c := New(Options{})
	require.NoError(t, c.Add("bad.obj", "://bad"))
	require.NoError(t, c.Add("good.obj", srv.URL+"/good"))

	rec := newFinishRecorder()
	require.NoError(t, c.Start(context.Background(), &in, rec))

	// the malformed URL is reported while Start is still running
	assert.EqualValues(t, 1, rec.calls.Load())
	assert.True(t, c.IsError())
	var urlErr *fetch.URLError
	assert.ErrorAs(t, c.Err(), &urlErr)
	assert.False(t, c.Entry(1).Done())
}
