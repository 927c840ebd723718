package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT() *auth.JWTManager {
	return auth.NewJWTManager(config.JWTConfig{
		Secret:         "test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL: time.Minute,
		Issuer:         "epicheck-test",
	})
}

func TestAuthenticate(t *testing.T) {
	jwt := newJWT()
	userID := uuid.New()
	pair, err := jwt.GenerateAccessToken(&domain.Claims{UserID: userID, Email: "a@example.com", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	r := gin.New()
	r.GET("/me", Authenticate(jwt), func(c *gin.Context) {
		c.String(http.StatusOK, ClaimsFrom(c).UserID.String())
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK},
		{"lowercase scheme", "bearer " + pair.AccessToken, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + pair.AccessToken, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == http.StatusOK && w.Body.String() != userID.String() {
				t.Errorf("claims not propagated, got %q", w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimit(1, 2), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes[i] = w.Code
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After on rejection")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of 2 then 429, got %v", codes)
	}

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("second client should not be limited, got %d", w.Code)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	r := gin.New()
	setClaims := func(id uuid.UUID) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set(claimsKey, &domain.Claims{UserID: id}) }
	}
	a, b := uuid.New(), uuid.New()
	limited := RateLimitPerUser(1)
	r.POST("/a", setClaims(a), limited, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/b", setClaims(b), limited, func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		return w.Code
	}

	if got := do("/a"); got != http.StatusOK {
		t.Fatalf("first request: got %d", got)
	}
	if got := do("/a"); got != http.StatusTooManyRequests {
		t.Fatalf("second request from same user: got %d", got)
	}
	if got := do("/b"); got != http.StatusOK {
		t.Fatalf("other user: got %d", got)
	}
}

func TestMetricsAndLogging(t *testing.T) {
	m := metrics.NewCollector("epicheck_test", prometheus.NewRegistry())
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), Metrics(m))
	r.GET("/cases/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cases/123", nil))

	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/cases/:id", "404")); got != 1 {
		t.Errorf("expected one request recorded under the route template, got %v", got)
	}
}
