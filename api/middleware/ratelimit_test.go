package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

func serveAs(handler http.Handler, actor uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	if actor != uuid.Nil {
		req = req.WithContext(WithActor(req.Context(), actor, enums.RoleBuyer))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerActor(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RateLimit(RateLimitConfig{PerMinute: 1, Burst: 2}, logger.Nop())(ok)
	alice, bob := uuid.New(), uuid.New()

	assert.Equal(t, http.StatusNoContent, serveAs(handler, alice).Code)
	assert.Equal(t, http.StatusNoContent, serveAs(handler, alice).Code)

	limited := serveAs(handler, alice)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, serveAs(handler, bob).Code)
	assert.Equal(t, http.StatusNoContent, serveAs(handler, uuid.Nil).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RateLimit(RateLimitConfig{}, logger.Nop())(ok)
	actor := uuid.New()
	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusNoContent, serveAs(handler, actor).Code)
	}
}
