// Package service builds upstream targets for the event and image relays
// and opens the single upstream connection each relay request owns.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hoho2017/weather-frontend/internal/client"
	"github.com/hoho2017/weather-frontend/internal/config"
	"github.com/hoho2017/weather-frontend/internal/metrics"
	"github.com/hoho2017/weather-frontend/internal/model"
	"github.com/hoho2017/weather-frontend/internal/relay"
)

// Input validation errors. No upstream connection is attempted when these are returned.
var (
	ErrMissingCoordinates = errors.New("missing lat or lon")
	ErrMissingPath        = errors.New("missing image path")
	ErrInvalidPath        = errors.New("image path does not resolve to the upstream origin")
)

// eventsPath is the upstream endpoint that streams image events for a location.
const eventsPath = "/images"

const (
	acceptEvents = "text/event-stream"
	acceptImages = "image/*,*/*"
)

// UpstreamError reports that the upstream connection could not be opened.
type UpstreamError struct {
	Relay string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("open %s upstream: %v", e.Relay, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Detail returns the transport-level failure message without the request
// URL, e.g. "dial tcp 10.0.0.1:8000: connect: connection refused".
func (e *UpstreamError) Detail() string {
	if errors.Is(e.Err, relay.ErrIdleTimeout) {
		return relay.ErrIdleTimeout.Error()
	}
	var urlErr *url.Error
	if errors.As(e.Err, &urlErr) {
		return urlErr.Err.Error()
	}
	return e.Err.Error()
}

// Connection is the open upstream side of one relay request.
type Connection struct {
	*model.UpstreamResponse

	ctx      context.Context
	cancel   context.CancelCauseFunc
	watchdog *relay.Watchdog
}

// CopyTo streams the upstream body into dst with the connection's idle watchdog.
func (c *Connection) CopyTo(dst io.Writer, opts relay.Options) (int64, error) {
	opts.Watchdog = c.watchdog
	return relay.Pipe(c.ctx, dst, c.Body, opts)
}

// Close releases the upstream connection. It is safe to call more than once.
func (c *Connection) Close() error {
	c.watchdog.Stop()
	c.cancel(context.Canceled)
	return c.Body.Close()
}

// RelayService opens upstream connections for the two relays.
type RelayService struct {
	client *client.UpstreamClient
	logger *slog.Logger
	origin string
	base   *url.URL
	idle   time.Duration
}

// NewRelayService creates a RelayService for the configured upstream origin.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	origin := strings.TrimRight(cfg.Upstream.BaseURL, "/")
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q has no host", cfg.Upstream.BaseURL)
	}

	return &RelayService{
		client: c,
		logger: logger.With("component", "relay_service"),
		origin: origin,
		base:   u,
		idle:   cfg.Upstream.IdleTimeout(),
	}, nil
}

// Origin returns the upstream origin all targets are built on.
func (s *RelayService) Origin() string { return s.origin }

// EventsURL returns the upstream event-stream target for coords. Values are
// query-escaped but otherwise passed through as given.
func (s *RelayService) EventsURL(coords model.Coordinates) string {
	return s.origin + eventsPath + "?lat=" + url.QueryEscape(coords.Lat) + "&lon=" + url.QueryEscape(coords.Lon)
}

// ImageURL returns the upstream target for path: the origin with path
// appended verbatim. Paths that would move the target to another host,
// port, scheme or userinfo are rejected with ErrInvalidPath.
func (s *RelayService) ImageURL(path model.ImagePath) (string, error) {
	target := s.origin + string(path)
	// Addresses that break out of the origin (no leading slash, userinfo,
	// port) become a 400 invalid-path response here. Fetching them would
	// only surface later as a 500 upstream error, or reach another host.
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if u.Scheme != s.base.Scheme || u.Host != s.base.Host || u.User != nil {
		return "", ErrInvalidPath
	}
	return target, nil
}

// OpenEvents opens the upstream event stream for coords.
func (s *RelayService) OpenEvents(ctx context.Context, coords model.Coordinates) (*Connection, error) {
	if !coords.Valid() {
		return nil, ErrMissingCoordinates
	}
	return s.open(ctx, metrics.RelayEvents, s.EventsURL(coords), acceptEvents)
}

// OpenImage opens the upstream image at path.
func (s *RelayService) OpenImage(ctx context.Context, path model.ImagePath) (*Connection, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	target, err := s.ImageURL(path)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, metrics.RelayImages, target, acceptImages)
}

// open derives the upstream context from ctx, so a client disconnect closes
// the upstream connection, and covers the wait for headers with the watchdog.
func (s *RelayService) open(ctx context.Context, relayName, target, accept string) (*Connection, error) {
	uctx, cancel := context.WithCancelCause(ctx)
	wd := relay.NewWatchdog(s.idle, cancel)

	resp, err := s.client.Open(uctx, relayName, target, accept)
	if err != nil {
		wd.Stop()
		if errors.Is(context.Cause(uctx), relay.ErrIdleTimeout) {
			err = fmt.Errorf("%w: %w", relay.ErrIdleTimeout, err)
		}
		cancel(context.Canceled)
		return nil, &UpstreamError{Relay: relayName, Err: err}
	}
	wd.Disarm()

	if resp.StatusCode >= 400 {
		s.logger.Warn("upstream returned error status",
			"relay", relayName,
			"status", resp.StatusCode,
		)
	}

	return &Connection{
		UpstreamResponse: resp,
		ctx:              uctx,
		cancel:           cancel,
		watchdog:         wd,
	}, nil
}
