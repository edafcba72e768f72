package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing here"))
	})
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer(routes{}, WithRegisterer(reg)), reg
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRecoverReturns500(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := serve(s, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAppErrorUsesStatus(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := serve(s, "/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	s, reg := newTestServer(t)
	serve(s, "/ok")
	serve(s, "/ok")
	serve(s, "/nope")

	n, err := testutil.GatherAndCount(reg, "nkdash_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// one series for /ok, one for the unmatched route
	if n != 2 {
		t.Fatalf("expected 2 series, got %d", n)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin %q", got)
	}
}
