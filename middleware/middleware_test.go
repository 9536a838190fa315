package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"visitor-kiosk/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var errBadCreds = errors.New("bad creds")

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, u, p string) (*models.Operator, error) {
	if u == "desk" && p == "pw" {
		return &models.Operator{Username: u}, nil
	}
	if u == "boom" {
		return nil, errors.New("db down")
	}
	return nil, errBadCreds
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()))
	r.GET("/secure", OperatorAuth(fakeAuth{}, errBadCreds, zap.NewNop()), func(c *gin.Context) {
		op := c.MustGet(OperatorKey).(*models.Operator)
		c.String(http.StatusOK, op.Username)
	})
	return r
}

func TestOperatorAuth(t *testing.T) {
	r := newEngine()

	cases := []struct {
		name     string
		user     string
		pass     string
		wantCode int
	}{
		{"valid", "desk", "pw", http.StatusOK},
		{"wrong password", "desk", "nope", http.StatusUnauthorized},
		{"store failure", "boom", "x", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			req.SetBasicAuth(tc.user, tc.pass)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.wantCode, w.Code)
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestRequestIDEchoedOrMinted(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestHTTPMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	r := gin.New()
	r.Use(m.Handler())
	r.GET("/api/visitors/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/visitors/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/visitors/:id", "204")))
}
