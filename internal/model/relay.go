// Package model defines shared types for the relay.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// Coordinates is the raw lat/lon pair of an event-stream request.
// Values are forwarded as given; they are never parsed or rounded.
type Coordinates struct {
	Lat string
	Lon string
}

// Valid reports whether both values are present.
func (c Coordinates) Valid() bool {
	return c.Lat != "" && c.Lon != ""
}

// ImagePath is an opaque upstream-relative address delivered in an
// "image" event. It is only meaningful to the image relay.
type ImagePath string

// RelayURL returns the same-origin image relay request for p, with the
// address percent-encoded into the path query parameter. It mirrors the
// rewrite gallery.js applies to every "image" event.
func (p ImagePath) RelayURL(prefix string) string {
	return prefix + "?path=" + url.QueryEscape(string(p))
}

// UpstreamResponse is an open upstream response whose body is streamed
// back to the client. The caller owns Body and must close it.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
