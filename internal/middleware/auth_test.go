package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService, err := auth.NewService("test-secret", time.Hour)
	require.NoError(t, err)
	middleware := NewAuthMiddleware(authService)

	// Test successful authentication
	t.Run("valid token", func(t *testing.T) {
		user := &models.User{
			ID:       "u1",
			Username: "kaptan",
			Role:     models.RoleShipAdmin,
			ShipID:   "ship-7",
		}
		token, _ := authService.GenerateToken(user)

		req := httptest.NewRequest("GET", "/api/schedule", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			viewer, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, user.Username, viewer.Username)
			assert.Equal(t, user.Role, viewer.Role)
			assert.Equal(t, "ship-7", viewer.ShipID)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	// Test missing authorization header
	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/schedule", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	// Test invalid token
	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/schedule", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	// Test malformed authorization headers
	t.Run("malformed authorization header", func(t *testing.T) {
		token, err := authService.GenerateToken(&models.User{ID: "u1", Role: models.RoleMainAdmin})
		require.NoError(t, err)

		for _, header := range []string{token, "Token " + token, "Bearer", "Bearer  " + token, "bearer " + token} {
			req := httptest.NewRequest("GET", "/api/schedule", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.False(t, handlerCalled, header)
			assert.Equal(t, http.StatusUnauthorized, w.Code, header)
			assert.Contains(t, w.Body.String(), "Bearer <token>")
		}
	})

	// Test skip auth paths
	t.Run("skip auth path", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("rate limit not exceeded", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(5, 5)
		req := httptest.NewRequest("GET", "/api/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.RateLimit(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rate limit exceeded", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(0.001, 1)
		req := httptest.NewRequest("GET", "/api/test", nil)
		req.RemoteAddr = "192.168.1.2:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		rateLimitHandler := middleware.RateLimit(handler)

		// First request should succeed
		rateLimitHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)

		// Second request should be rate limited
		w = httptest.NewRecorder()
		handlerCalled = false
		rateLimitHandler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		// Other clients have their own bucket
		other := httptest.NewRequest("GET", "/api/test", nil)
		other.RemoteAddr = "192.168.1.3:12345"
		w = httptest.NewRecorder()
		rateLimitHandler.ServeHTTP(w, other)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("idle clients are forgotten", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(0.001, 1)
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		middleware.now = func() time.Time { return now }

		assert.True(t, middleware.allow("10.0.0.1"))
		assert.False(t, middleware.allow("10.0.0.1"))

		now = now.Add(10 * time.Minute)
		assert.True(t, middleware.allow("10.0.0.2"))
		assert.NotContains(t, middleware.clients, "10.0.0.1")
	})
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies("10.0.0.0/8, 192.0.2.1")
	require.NoError(t, err)

	t.Run("no trusted proxies ignores forwarding headers", func(t *testing.T) {
		m := NewRateLimitMiddleware(1, 1)
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "198.51.100.7:4567"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		req.Header.Set("X-Real-IP", "172.16.0.1")
		assert.Equal(t, "198.51.100.7", m.clientIP(req))
	})

	t.Run("spoofed header from untrusted peer", func(t *testing.T) {
		m := NewRateLimitMiddleware(1, 1, proxies...)
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "198.51.100.7:4567"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, "198.51.100.7", m.clientIP(req))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		m := NewRateLimitMiddleware(1, 1, proxies...)
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, "203.0.113.9", m.clientIP(req))

		// the client prepended a fake hop; the first untrusted hop from the right wins
		req.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.9, 10.0.0.5")
		assert.Equal(t, "203.0.113.9", m.clientIP(req))

		req.Header.Del("X-Forwarded-For")
		req.Header.Set("X-Real-IP", "172.16.0.1")
		assert.Equal(t, "172.16.0.1", m.clientIP(req))

		req.Header.Del("X-Real-IP")
		assert.Equal(t, "10.1.2.3", m.clientIP(req))
	})

	t.Run("bare trusted ip", func(t *testing.T) {
		m := NewRateLimitMiddleware(1, 1, proxies...)
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.1:80"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, "203.0.113.9", m.clientIP(req))

		req.RemoteAddr = "192.0.2.2:80"
		assert.Equal(t, "192.0.2.2", m.clientIP(req))
	})
}

func TestRateLimitMiddleware_SpoofedHeaderSharesBucket(t *testing.T) {
	middleware := NewRateLimitMiddleware(0.001, 1)
	handler := middleware.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/api/schedule", nil)
		req.RemoteAddr = "198.51.100.7:4567"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
}

func TestParseTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, nets)

	nets, err = ParseTrustedProxies("10.0.0.0/8,::1")
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.True(t, nets[1].Contains(net.ParseIP("::1")))

	_, err = ParseTrustedProxies("10.0.0.0/33")
	assert.Error(t, err)
	_, err = ParseTrustedProxies("proxy.local")
	assert.Error(t, err)
}

func TestGetUserFromContext(t *testing.T) {
	user := &models.User{
		ID:       "test-id",
		Username: "testuser",
		Role:     models.RoleMainAdmin,
	}

	ctx := WithUser(context.Background(), user)

	retrieved, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, user, retrieved)

	// Test with no user in context
	emptyCtx := context.Background()
	_, ok = GetUserFromContext(emptyCtx)
	assert.False(t, ok)
}

func TestLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	req := httptest.NewRequest("PUT", "/api/schedule/A_2024-03-01/comment", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.StatusBadGateway, entry.Data["status"])
	assert.Equal(t, "/api/schedule/A_2024-03-01/comment", entry.Data["path"])
}
