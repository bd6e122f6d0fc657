package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	request "ssot/pkg/platform/middleware/request"
	"ssot/pkg/platform/secrets"
	"ssot/pkg/requestcontext"
	"ssot/pkg/testutil"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seenActor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenActor = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := request.Actor("")(RequireAdminToken(StaticToken("secret-token"), logger)(next))

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/calibration", nil)
		req.Header.Set(request.HeaderActorID, "operator-7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/calibration", nil)
		req.Header.Set("X-Admin-Token", "secret-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token and actor pass through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/calibration", nil)
		req.Header.Set("X-Admin-Token", "secret-token")
		req.Header.Set(request.HeaderActorID, "operator-7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "operator-7", seenActor)
	})

	t.Run("actor set upstream is honoured", func(t *testing.T) {
		guard := RequireAdminToken(StaticToken("secret-token"), logger)(next)
		req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/audit", nil), "cli-operator")
		req.Header.Set("X-Admin-Token", "secret-token")
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "cli-operator", seenActor)
	})

	t.Run("empty configured token rejects everything", func(t *testing.T) {
		guard := RequireAdminToken(StaticToken(""), logger)(next)
		req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/audit", nil), "cli-operator")
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdminTokenHash(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash, err := secrets.HashToken("issued-token")
	require.NoError(t, err)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guard := RequireAdminToken(HashedToken(hash), logger)(next)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "issued token", token: "issued-token", want: http.StatusNoContent},
		{name: "wrong token", token: "issued-tokeN", want: http.StatusUnauthorized},
		{name: "hash itself is not a token", token: hash, want: http.StatusUnauthorized},
		{name: "no token", token: "", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/review", nil), "operator-7")
			req.Header.Set("X-Admin-Token", tt.token)
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
