package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/polyfetch/internal/exec"
	"github.com/tanq16/polyfetch/internal/utils"
)

// Listener receives the outcome of a Request. Exactly one method is called,
// once, on the Request's executor.
type Listener interface {
	// OnSuccess gets the full response body of a 200 response.
	OnSuccess(body []byte)
	// OnFailure gets the status code if a response was received (otherwise
	// 0), a message and the underlying error if any.
	OnFailure(statusCode int, message string, cause error)
}

// ListenerFuncs adapts a pair of functions to Listener.
type ListenerFuncs struct {
	Success func(body []byte)
	Failure func(statusCode int, message string, cause error)
}

func (l ListenerFuncs) OnSuccess(body []byte) {
	if l.Success != nil {
		l.Success(body)
	}
}

func (l ListenerFuncs) OnFailure(statusCode int, message string, cause error) {
	if l.Failure != nil {
		l.Failure(statusCode, message, cause)
	}
}

type Option func(*Request)

// WithClient sets the client used to perform the request.
func WithClient(client utils.HTTPDoer) Option {
	return func(r *Request) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout bounds the whole request, body included.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) {
		r.timeout = d
	}
}

// Request is a one-shot asynchronous HTTP GET.
type Request struct {
	url      *url.URL
	executor exec.Executor
	listener Listener
	client   utils.HTTPDoer
	timeout  time.Duration
	sent     atomic.Bool
}

// NewRequest validates rawURL and returns a request ready to be sent. A URL
// that cannot be requested yields a *URLError and no request.
func NewRequest(rawURL string, executor exec.Executor, listener Listener, opts ...Option) (*Request, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		log.Error().Str("op", "fetch/request").Msgf("Invalid URL: %s", rawURL)
		return nil, err
	}
	r := &Request{
		url:      u,
		executor: executor,
		listener: listener,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewRequestOrReport is NewRequest for callers that only consume the
// listener: a bad URL is posted to the listener as a failure with status 0
// and a nil request is returned.
func NewRequestOrReport(rawURL string, executor exec.Executor, listener Listener, opts ...Option) *Request {
	r, err := NewRequest(rawURL, executor, listener, opts...)
	if err != nil {
		executor.Post(func() { listener.OnFailure(0, err.Error(), err) })
		return nil
	}
	return r
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &URLError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &URLError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &URLError{URL: rawURL, Err: fmt.Errorf("missing host")}
	}
	return u, nil
}

func (r *Request) URL() string {
	return r.url.String()
}

// Send starts the request on its own goroutine and returns immediately.
// Cancelling ctx aborts the request and reports a failure.
func (r *Request) Send(ctx context.Context) error {
	if !r.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	go r.run(ctx)
	return nil
}

func (r *Request) run(ctx context.Context) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	target := r.url.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		r.postFailure(0, fmt.Sprintf("exception while processing request to %s", target), err)
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.postFailure(0, fmt.Sprintf("exception while processing request to %s", target), err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{URL: target, StatusCode: resp.StatusCode}
		r.postFailure(resp.StatusCode, se.Error(), se)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.postFailure(0, fmt.Sprintf("exception while processing request to %s", target), err)
		return
	}
	log.Debug().Str("op", "fetch/request").Msgf("Fetched %d bytes from %s", len(body), target)
	r.postSuccess(body)
}

func (r *Request) postFailure(statusCode int, message string, cause error) {
	if !r.executor.Post(func() { r.listener.OnFailure(statusCode, message, cause) }) {
		log.Warn().Str("op", "fetch/request").Msgf("Executor rejected failure callback for %s", r.url)
	}
}

func (r *Request) postSuccess(body []byte) {
	if !r.executor.Post(func() { r.listener.OnSuccess(body) }) {
		log.Warn().Str("op", "fetch/request").Msgf("Executor rejected success callback for %s", r.url)
	}
}
