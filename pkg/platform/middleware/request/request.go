// Package request attaches correlation and actor metadata to incoming requests.
package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ssot/pkg/requestcontext"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderActorID   = "X-Actor-ID"
)

// maxActorLength bounds operator identifiers copied into audit entries.
const maxActorLength = 128

// RequestID reuses an incoming X-Request-ID or generates one, and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}

// Actor copies the operator identity forwarded by the portal into the context.
// Requests without the header get fallback, which may be empty.
func Actor(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if len(actor) > maxActorLength {
				actor = actor[:maxActorLength]
			}
			if actor == "" {
				actor = fallback
			}
			ctx := r.Context()
			if actor != "" {
				ctx = requestcontext.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
