package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	models "NKDash/internal/domain/models"
	domrepo "NKDash/internal/domain/repository"
	"NKDash/internal/service/eventlog"
	"NKDash/internal/service/ratelimit"
	"NKDash/internal/usecase"
	xhttp "NKDash/pkg/http"

	"github.com/labstack/echo/v4"
)

type fakeTelemetry struct {
	mu       sync.Mutex
	status   models.ConnectionStatus
	snapshot *models.Snapshot
	ring     *eventlog.Ring
	events   chan models.ConnectionEvent
	subbed   chan string
	canceled bool
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{
		status: models.StatusDisconnected,
		ring:   eventlog.New(),
		events: make(chan models.ConnectionEvent, 4),
		subbed: make(chan string, 1),
	}
}

func (f *fakeTelemetry) CurrentStatus() models.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTelemetry) LatestSnapshot() *models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeTelemetry) Info() usecase.StatusInfo {
	info := usecase.StatusInfo{Status: f.CurrentStatus()}
	if info.Status == models.StatusLive {
		since := time.Now().Add(-3 * time.Minute)
		info.ConnectedSince = &since
	}
	return info
}

func (f *fakeTelemetry) Log() *eventlog.Ring { return f.ring }

func (f *fakeTelemetry) Subscribe(name string) (<-chan models.ConnectionEvent, func()) {
	f.subbed <- name
	return f.events, func() {
		f.mu.Lock()
		f.canceled = true
		f.mu.Unlock()
	}
}

func newTestEcho(h *DashboardEchoHandler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) xhttp.APIResponse {
	t.Helper()
	var env struct {
		xhttp.APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env.APIResponse
}

func TestSnapshotNoContentBeforeFirstFrame(t *testing.T) {
	e := newTestEcho(NewDashboardEchoHandler(nil, newFakeTelemetry()))
	rec := do(t, e, "/api/snapshot")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestSnapshotReturnsFrameAsReceived(t *testing.T) {
	f := newFakeTelemetry()
	frame := `{"positions":{"NIFTY":{"qty":50}},"sentiment":0.42,"active_orders":[],"pnl":1250.5}`
	s, err := models.DecodeSnapshot([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	f.snapshot = s

	rec := do(t, newTestEcho(NewDashboardEchoHandler(nil, f)), "/api/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != frame {
		t.Fatalf("body %q", rec.Body.String())
	}
}

type memMirror struct{ s *models.Snapshot }

func (m *memMirror) Mirror(_ context.Context, s *models.Snapshot) error { m.s = s; return nil }
func (m *memMirror) Close() error                                       { return nil }
func (m *memMirror) Latest(context.Context) (*models.Snapshot, error) {
	if m.s == nil {
		return nil, domrepo.ErrNoSnapshot
	}
	return m.s, nil
}

func TestSnapshotFromMirror(t *testing.T) {
	mirror := &memMirror{}
	e := newTestEcho(NewDashboardEchoHandler(nil, newFakeTelemetry(), WithSnapshotMirror(mirror)))

	if rec := do(t, e, "/api/snapshot?source=mirror"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from empty mirror, got %d", rec.Code)
	}
	s, _ := models.DecodeSnapshot([]byte(`{"pnl":-20}`), time.Now())
	_ = mirror.Mirror(context.Background(), s)
	rec := do(t, e, "/api/snapshot?source=mirror")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"pnl":-20}` {
		t.Fatalf("unexpected mirror response %d %q", rec.Code, rec.Body.String())
	}
}

func TestSnapshotMirrorNotConfigured(t *testing.T) {
	e := newTestEcho(NewDashboardEchoHandler(nil, newFakeTelemetry()))
	if rec := do(t, e, "/api/snapshot?source=mirror"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, do(t, e, "/api/snapshot?source=disk"), nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestKPIInitializing(t *testing.T) {
	rec := do(t, newTestEcho(NewDashboardEchoHandler(nil, newFakeTelemetry())), "/api/kpi")
	var view models.KPIView
	decodeEnvelope(t, rec, &view)
	if !view.Initializing || view.PnLLabel != "₹0" || view.RiskLevel != models.RiskLevelLow {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestLogsLimitAndValidation(t *testing.T) {
	f := newFakeTelemetry()
	for i := 0; i < 5; i++ {
		f.ring.Append("System Connected to Neural Core.")
	}
	e := newTestEcho(NewDashboardEchoHandler(nil, f))

	type logsPage struct {
		Rows  []string `json:"rows"`
		Total int64    `json:"total"`
	}
	var res logsPage
	decodeEnvelope(t, do(t, e, "/api/logs?limit=2"), &res)
	if len(res.Rows) != 2 || res.Total != 5 {
		t.Fatalf("unexpected logs %+v", res)
	}

	res = logsPage{}
	decodeEnvelope(t, do(t, e, "/api/logs"), &res)
	if len(res.Rows) != 5 {
		t.Fatalf("default limit returned %d entries", len(res.Rows))
	}

	env := decodeEnvelope(t, do(t, e, "/api/logs?limit=12"), nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestReadyz(t *testing.T) {
	f := newFakeTelemetry()
	e := newTestEcho(NewDashboardEchoHandler(nil, f))

	if rec := do(t, e, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while disconnected, got %d", rec.Code)
	}
	if rec := do(t, e, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz %d", rec.Code)
	}

	f.mu.Lock()
	f.status = models.StatusLive
	f.mu.Unlock()
	var res models.HealthResponse
	rec := do(t, e, "/readyz")
	decodeEnvelope(t, rec, &res)
	if rec.Code != http.StatusOK || !res.Ready {
		t.Fatalf("expected ready, got %d %+v", rec.Code, res)
	}
}

func TestStatusReportsConnectedFor(t *testing.T) {
	f := newFakeTelemetry()
	f.status = models.StatusLive
	e := newTestEcho(NewDashboardEchoHandler(nil, f))

	var v statusView
	decodeEnvelope(t, do(t, e, "/api/status"), &v)
	if v.Status != models.StatusLive || v.ConnectedFor != "3 minutes ago" {
		t.Fatalf("unexpected status view %+v", v)
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewWithClock(func() time.Time { return now })
	e := newTestEcho(NewDashboardEchoHandler(nil, newFakeTelemetry(), WithRateLimit(l, 2, 1)))

	for i := 0; i < 2; i++ {
		if rec := do(t, e, "/api/status"); rec.Code != http.StatusOK {
			t.Fatalf("request %d rejected: %d", i, rec.Code)
		}
	}
	if rec := do(t, e, "/api/status"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := do(t, e, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("health checks must not be limited, got %d", rec.Code)
	}
}

func TestStreamRelaysEvents(t *testing.T) {
	f := newFakeTelemetry()
	srv := httptest.NewServer(newTestEcho(NewDashboardEchoHandler(nil, f)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type %q", ct)
	}

	if name := <-f.subbed; name != "sse" {
		t.Fatalf("subscriber name %q, want a fixed label", name)
	}
	f.events <- models.ConnectionEvent{Kind: models.EventConnected, Seq: 1, Status: models.StatusLive}
	close(f.events)

	sc := bufio.NewScanner(resp.Body)
	var names []string
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	if len(names) != 2 || names[0] != "status" || names[1] != "connected" {
		t.Fatalf("unexpected events %v", names)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.canceled {
		t.Fatalf("subscription not released")
	}
}
