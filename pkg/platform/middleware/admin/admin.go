package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "ssot/pkg/domain-errors"
	"ssot/pkg/platform/httputil"
	request "ssot/pkg/platform/middleware/request"
	"ssot/pkg/platform/secrets"
	"ssot/pkg/requestcontext"
)

// TokenCheck reports whether a presented X-Admin-Token is accepted.
type TokenCheck func(token string) bool

// StaticToken accepts exactly expected. An empty expected rejects everything.
func StaticToken(expected string) TokenCheck {
	return func(token string) bool {
		return expected != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
	}
}

// HashedToken accepts tokens matching a bcrypt hash issued by
// `ssotctl admin-token`.
func HashedToken(hash string) TokenCheck {
	return func(token string) bool {
		return secrets.TokenMatches(token, hash)
	}
}

// RequireAdminToken guards operator routes with the shared secret the portal
// sends in X-Admin-Token, and requires the acting operator to be identified.
func RequireAdminToken(accept TokenCheck, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !accept(r.Header.Get("X-Admin-Token")) {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			if requestcontext.Actor(ctx) == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Actor-ID header required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
