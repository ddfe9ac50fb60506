package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultBufferSize is the chunk size used when Options.BufferSize is zero.
const DefaultBufferSize = 32 * 1024

// Pipe failure classes. Errors returned by Pipe wrap exactly one of these
// together with the underlying cause.
var (
	ErrUpstream    = errors.New("relay: upstream read failed")
	ErrClient      = errors.New("relay: client write failed")
	ErrIdleTimeout = errors.New("relay: upstream idle timeout")
)

// Options tunes a single Pipe call.
type Options struct {
	BufferSize int
	// Flush pushes written bytes to the client after every chunk.
	Flush func() error
	// Watchdog, if set, is armed while waiting on the upstream and disarmed
	// while writing to the client, so a slow client is not mistaken for an
	// idle upstream.
	Watchdog *Watchdog
	// Progress is called with the size of every chunk delivered to dst.
	Progress func(n int)
}

// Pipe copies src to dst one chunk at a time: a chunk is read, written and
// flushed before the next read is issued, so a slow dst stalls reads from src.
// ctx must be the context of the upstream request; it is consulted only to
// classify a failed read. A clean EOF from src returns a nil error.
func Pipe(ctx context.Context, dst io.Writer, src io.Reader, opts Options) (int64, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)

	var written int64
	for {
		opts.Watchdog.Arm()
		nr, rerr := src.Read(buf)
		opts.Watchdog.Disarm()

		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr == nil && opts.Flush != nil {
				werr = opts.Flush()
			}
			if werr != nil {
				return written, fmt.Errorf("%w: %w", ErrClient, werr)
			}
			if opts.Progress != nil {
				opts.Progress(nr)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, classifyRead(ctx, rerr)
		}
	}
}

// classifyRead attributes a failed upstream read to the watchdog, to the
// client going away, or to the upstream itself.
func classifyRead(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrIdleTimeout) {
		return fmt.Errorf("%w: %w", ErrIdleTimeout, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrClient, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// Watchdog cancels an upstream context with ErrIdleTimeout when it stays
// armed for longer than its idle window. A nil *Watchdog is valid and inert.
type Watchdog struct {
	timer *time.Timer
	idle  time.Duration
}

// NewWatchdog returns an armed watchdog, so the wait for upstream response
// headers is covered too. A non-positive idle returns nil.
func NewWatchdog(idle time.Duration, cancel context.CancelCauseFunc) *Watchdog {
	if idle <= 0 {
		return nil
	}
	return &Watchdog{
		idle:  idle,
		timer: time.AfterFunc(idle, func() { cancel(ErrIdleTimeout) }),
	}
}

// Arm (re)starts the idle window.
func (w *Watchdog) Arm() {
	if w != nil {
		w.timer.Reset(w.idle)
	}
}

// Disarm pauses the idle window.
func (w *Watchdog) Disarm() {
	if w != nil {
		w.timer.Stop()
	}
}

// Stop releases the timer. The watchdog must not be used afterwards.
func (w *Watchdog) Stop() { w.Disarm() }
