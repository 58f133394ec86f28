package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anoa.com/marketchat/internal/config"
	"anoa.com/marketchat/internal/middleware"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		AppEnv:            "test",
		AllowedOrigins:    []string{"*"},
		JWTSecret:         "secret",
		InternalAPIKey:    "internal",
		RateLimitThread:   time.Minute,
		IdempotencyWindow: time.Hour,
		WSPingInterval:    time.Second,
	}
	return NewServer(Deps{
		Config: cfg,
		DB:     testutil.NewDB(t),
		Broker: realtime.NewMemoryBroker(nil),
	})
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()

	for _, path := range []string{"/api/chat/unread-count", "/api/notifications", "/api/notification-preferences"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", bearer(t, user))
		w = serve(s, req)
		assert.Equal(t, http.StatusOK, w.Code, "%s: %s", path, w.Body.String())
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	s := newTestServer(t)
	body := `{"user_id":"` + uuid.NewString() + `","type":"system","title":"Scheduled maintenance"}`

	req := httptest.NewRequest(http.MethodPost, "/api/internal/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.NewString()))
	w := serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/internal/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.InternalKeyHeader, "internal")
	w = serve(s, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
