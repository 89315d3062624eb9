package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("http_test")
	require.NoError(t, err)

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "http_test"))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	})
	router.GET("/jobs/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, path := range []string{"/health", "/health", "/ready", "/jobs/1", "/jobs/2", "/wp-login.php"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	output := scrape(t, provider)

	assertBizMetricLine(t, output, `http_test_http_requests_total`,
		`method="GET".*path="/health".*status_code="200"`, `2`)
	assertBizMetricLine(t, output, `http_test_http_requests_total`,
		`method="GET".*path="/ready".*status_code="503"`, `1`)
	assertBizMetricLine(t, output, `http_test_http_requests_total`,
		`method="GET".*path="/jobs/:id".*status_code="204"`, `2`)
	assertBizMetricLine(t, output, `http_test_http_requests_total`,
		`method="GET".*path="unmatched".*status_code="404"`, `1`)
	assertBizMetricLine(t, output, `http_test_http_request_duration_seconds_count`,
		`method="GET".*path="/health".*status_code="200"`, `2`)
	assert.NotContains(t, output, "wp-login")
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "route pattern", input: "/jobs/:id", expected: "/jobs/:id"},
		{name: "no route", input: "", expected: "unmatched"},
		{name: "root", input: "/", expected: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, routeLabel(tt.input))
		})
	}
}
