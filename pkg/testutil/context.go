package testutil

import (
	"net/http"
	"time"

	"ssot/pkg/requestcontext"
)

// WithActor attaches the acting operator or system, as the request middleware would.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID attaches a correlation id.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// AtTime pins the request clock so stored timestamps are predictable.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
