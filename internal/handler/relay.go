package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hoho2017/weather-frontend/internal/config"
	"github.com/hoho2017/weather-frontend/internal/metrics"
	"github.com/hoho2017/weather-frontend/internal/model"
	"github.com/hoho2017/weather-frontend/internal/relay"
	"github.com/hoho2017/weather-frontend/internal/service"
)

const fallbackImageType = "image/png"

// errorBody is the JSON shape of every relay error response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// relayMessages holds the client-facing error strings of one relay.
type relayMessages struct {
	missing  string
	upstream string
}

var messages = map[string]relayMessages{
	metrics.RelayEvents: {missing: "Missing lat or lon parameters", upstream: "Proxy error"},
	metrics.RelayImages: {missing: "Missing image path parameter", upstream: "Image proxy error"},
}

const msgInvalidPath = "Invalid image path parameter"

// RelayHandler serves the event-stream and image relays.
type RelayHandler struct {
	service      *service.RelayService
	metrics      *metrics.Metrics
	logger       *slog.Logger
	bufferSize   int
	imageCaching string

	// Client disconnects are routine (tab closed, gallery re-queried); log a sample.
	disconnectLog rate.Sometimes
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional.
func NewRelayHandler(svc *service.RelayService, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service:       svc,
		metrics:       m,
		logger:        logger.With("component", "relay_handler"),
		bufferSize:    cfg.Relay.BufferSize,
		imageCaching:  "public, max-age=" + strconv.Itoa(cfg.Relay.ImageMaxAgeSeconds),
		disconnectLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Events relays the upstream event stream for ?lat=&lon= to the client.
func (h *RelayHandler) Events(c echo.Context) error {
	coords := model.Coordinates{
		Lat: c.QueryParam("lat"),
		Lon: c.QueryParam("lon"),
	}
	res := relay.NewResponse(c.Response())

	conn, err := h.service.OpenEvents(c.Request().Context(), coords)
	if err != nil {
		return h.mapError(c, res, metrics.RelayEvents, err)
	}
	defer func() { _ = conn.Close() }()

	header := res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	return h.stream(c, res, conn, metrics.RelayEvents)
}

// Images relays the upstream resource at ?path= to the client.
func (h *RelayHandler) Images(c echo.Context) error {
	path := model.ImagePath(c.QueryParam("path"))
	res := relay.NewResponse(c.Response())

	conn, err := h.service.OpenImage(c.Request().Context(), path)
	if err != nil {
		return h.mapError(c, res, metrics.RelayImages, err)
	}
	defer func() { _ = conn.Close() }()

	contentType := conn.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = fallbackImageType
	}

	header := res.Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderCacheControl, h.imageCaching)

	return h.stream(c, res, conn, metrics.RelayImages)
}

// stream commits a 200 and forwards the upstream body. A failure on the
// upstream side after commit aborts the client connection, which is the only
// way left to signal an error once headers are on the wire.
func (h *RelayHandler) stream(c echo.Context, res *relay.Response, conn *service.Connection, name string) error {
	req := c.Request()
	start := time.Now()

	if err := res.Commit(http.StatusOK); err != nil {
		h.finish(name, metrics.OutcomeClientGone)
		h.logDisconnect(name, req, 0, err)
		return nil
	}

	h.activeStreams(name, 1)
	defer h.activeStreams(name, -1)

	n, err := conn.CopyTo(res, relay.Options{
		BufferSize: h.bufferSize,
		Flush:      res.Flush,
		Progress:   h.progress(name),
	})

	switch {
	case err == nil:
		res.Close()
		h.finish(name, metrics.OutcomeCompleted)
		h.logger.Debug("relay stream completed",
			"relay", name,
			"bytes", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil

	case errors.Is(err, relay.ErrClient):
		h.finish(name, metrics.OutcomeClientGone)
		h.logDisconnect(name, req, n, err)
		return nil

	default:
		outcome := metrics.OutcomeUpstreamError
		if errors.Is(err, relay.ErrIdleTimeout) {
			outcome = metrics.OutcomeIdleTimeout
		}
		h.finish(name, outcome)
		h.logger.Warn("relay stream aborted",
			"relay", name,
			"outcome", outcome,
			"err", err,
			"bytes", n,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		_ = conn.Close()
		panic(http.ErrAbortHandler)
	}
}

// mapError renders a pre-stream failure as a JSON error body.
func (h *RelayHandler) mapError(c echo.Context, res *relay.Response, name string, err error) error {
	msgs := messages[name]
	status := http.StatusInternalServerError
	body := errorBody{Error: msgs.upstream}

	var upErr *service.UpstreamError
	switch {
	case errors.Is(err, service.ErrMissingCoordinates), errors.Is(err, service.ErrMissingPath):
		status = http.StatusBadRequest
		body = errorBody{Error: msgs.missing}

	case errors.Is(err, service.ErrInvalidPath):
		status = http.StatusBadRequest
		body = errorBody{Error: msgInvalidPath}

	case errors.As(err, &upErr):
		body.Details = upErr.Detail()
		outcome := metrics.OutcomeConnectError
		if errors.Is(err, context.Canceled) && c.Request().Context().Err() != nil {
			outcome = metrics.OutcomeClientGone
		}
		h.finish(name, outcome)

	default:
		body.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("relay error",
			"relay", name,
			"err", err,
		)
	} else {
		h.logger.Debug("rejected relay request",
			"relay", name,
			"err", err,
		)
	}

	return res.Fail(func() error { return writeJSON(c, status, body) })
}

// writeJSON renders body without the trailing newline c.JSON appends.
func writeJSON(c echo.Context, status int, body errorBody) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode error body: %w", err)
	}
	return c.Blob(status, echo.MIMEApplicationJSON, data)
}

func (h *RelayHandler) logDisconnect(name string, req *http.Request, n int64, err error) {
	h.disconnectLog.Do(func() {
		h.logger.Info("client disconnected",
			"relay", name,
			"path", req.URL.Path,
			"bytes", n,
			"err", err,
		)
	})
}

func (h *RelayHandler) finish(name, outcome string) {
	if h.metrics != nil {
		h.metrics.StreamsTotal.WithLabelValues(name, outcome).Inc()
	}
}

func (h *RelayHandler) activeStreams(name string, delta float64) {
	if h.metrics != nil {
		h.metrics.StreamsActive.WithLabelValues(name).Add(delta)
	}
}

func (h *RelayHandler) progress(name string) func(int) {
	if h.metrics == nil {
		return nil
	}
	counter := h.metrics.StreamBytes.WithLabelValues(name)
	return func(n int) { counter.Add(float64(n)) }
}
