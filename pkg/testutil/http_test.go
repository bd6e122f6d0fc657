package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "ssot/pkg/domain-errors"
	"ssot/pkg/platform/httputil"
)

func TestErrorBodyMatchesWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	httputil.WriteError(rr, dErrors.NewField(dErrors.CodeValidation, "override", "set override to accept"))

	AssertFieldError(t, rr, http.StatusBadRequest, "validation_error", "override")
	body := UnmarshalErrorResponse(t, rr)
	assert.Equal(t, "set override to accept", body.Description)
}

func TestResponseCanBeReadTwice(t *testing.T) {
	rr := httptest.NewRecorder()
	httputil.WriteJSON(rr, http.StatusOK, map[string]int{"count": 2, "total": 9})

	AssertJSONContains(t, rr, "count", float64(2))
	AssertJSONContains(t, rr, "total", float64(9))
}

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(t, http.MethodPost, "/submissions", map[string]string{"full_name": "Ahmad Fauzi"})
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var body map[string]string
	assert.NoError(t, httputil.DecodeJSON(req, &body))
	assert.Equal(t, "Ahmad Fauzi", body["full_name"])
}
