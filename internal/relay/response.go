// Package relay moves the body of one upstream response into one client
// response. At most one chunk is held in memory at any time, and the client
// response commits to either a stream or an error body, never both.
package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCommitted is returned when a response that already started streaming
// is asked to switch to an error body, or vice versa.
var ErrCommitted = errors.New("relay: response already committed")

// State is the lifecycle position of a relayed response.
type State int

const (
	// NotStarted: no status or body bytes sent; an error body is still possible.
	NotStarted State = iota
	// Streaming: status and headers sent, body is being forwarded.
	Streaming
	// Closed: the stream ended cleanly.
	Closed
	// FailedBeforeStart: an error body was sent instead of a stream.
	FailedBeforeStart
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case FailedBeforeStart:
		return "failed_before_start"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Response guards an http.ResponseWriter with the relay state machine.
// It is used by a single handler goroutine and is not safe for concurrent use.
type Response struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	state State
}

// NewResponse wraps w in the NotStarted state.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w, rc: http.NewResponseController(w)}
}

// State returns the current state.
func (r *Response) State() State { return r.state }

// Header returns the header map that Commit will send.
func (r *Response) Header() http.Header { return r.w.Header() }

// Commit sends status and headers and flushes them so the client sees the
// stream open before the first upstream chunk arrives.
func (r *Response) Commit(status int) error {
	if r.state != NotStarted {
		return fmt.Errorf("commit in state %s: %w", r.state, ErrCommitted)
	}
	r.state = Streaming
	r.w.WriteHeader(status)
	if err := r.Flush(); err != nil {
		return fmt.Errorf("flush headers: %w", err)
	}
	return nil
}

// Write forwards body bytes. It fails unless the response is streaming.
func (r *Response) Write(p []byte) (int, error) {
	if r.state != Streaming {
		return 0, fmt.Errorf("write in state %s: %w", r.state, ErrCommitted)
	}
	return r.w.Write(p)
}

// Flush pushes buffered body bytes to the client.
func (r *Response) Flush() error {
	err := r.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// Fail runs write, which renders an error body, only if nothing was sent yet.
// Once streaming has begun it returns ErrCommitted and writes nothing.
func (r *Response) Fail(write func() error) error {
	if r.state != NotStarted {
		return fmt.Errorf("fail in state %s: %w", r.state, ErrCommitted)
	}
	r.state = FailedBeforeStart
	return write()
}

// Close marks a streaming response as cleanly finished.
func (r *Response) Close() {
	if r.state == Streaming {
		r.state = Closed
	}
}
