package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	models "NKDash/internal/domain/models"
	domrepo "NKDash/internal/domain/repository"
	"NKDash/internal/service/eventlog"
	"NKDash/internal/service/ratelimit"
	"NKDash/internal/usecase"
	xhttp "NKDash/pkg/http"
	xlogger "NKDash/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// Telemetry is the part of the connection manager the read API needs.
type Telemetry interface {
	CurrentStatus() models.ConnectionStatus
	LatestSnapshot() *models.Snapshot
	Info() usecase.StatusInfo
	Log() *eventlog.Ring
	Subscribe(name string) (<-chan models.ConnectionEvent, func())
}

// DashboardEchoHandler serves the dashboard read API over Echo.
type DashboardEchoHandler struct {
	logger    *xlogger.Logger
	telemetry Telemetry
	mirror    domrepo.SnapshotMirror
	limiter   *ratelimit.Limiter
	burst     float64
	perSec    float64
	heartbeat time.Duration
}

type DashboardOption func(*DashboardEchoHandler)

// WithRateLimit enables per-client token buckets on /api routes.
func WithRateLimit(l *ratelimit.Limiter, burst, perSecond float64) DashboardOption {
	return func(h *DashboardEchoHandler) {
		if l != nil && burst > 0 && perSecond > 0 {
			h.limiter = l
			h.burst = burst
			h.perSec = perSecond
		}
	}
}

// WithSnapshotMirror lets /api/snapshot?source=mirror read the shared copy.
func WithSnapshotMirror(m domrepo.SnapshotMirror) DashboardOption {
	return func(h *DashboardEchoHandler) { h.mirror = m }
}

// WithHeartbeat sets the keep-alive interval of the event stream.
func WithHeartbeat(d time.Duration) DashboardOption {
	return func(h *DashboardEchoHandler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func NewDashboardEchoHandler(logger *xlogger.Logger, t Telemetry, opts ...DashboardOption) *DashboardEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &DashboardEchoHandler{logger: logger, telemetry: t, heartbeat: 15 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)

	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(h.rateLimit)
	}
	g.GET("/status", h.Status)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/kpi", h.KPI)
	g.GET("/logs", h.Logs)
	g.GET("/stream", h.Stream)
}

func (h *DashboardEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow(c.RealIP(), h.burst, h.perSec) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

type statusView struct {
	usecase.StatusInfo
	ConnectedFor string `json:"connected_for,omitempty"`
}

func (h *DashboardEchoHandler) Status(c echo.Context) error {
	v := statusView{StatusInfo: h.telemetry.Info()}
	if v.ConnectedSince != nil {
		v.ConnectedFor = humanize.Time(*v.ConnectedSince)
	}
	return xhttp.SuccessResponse(c, v)
}

// Snapshot returns the latest frame as received, or 204 before the first one.
// source=mirror reads the copy kept in the external mirror instead.
func (h *DashboardEchoHandler) Snapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s := h.telemetry.LatestSnapshot()
	if req.Source == "mirror" {
		if h.mirror == nil {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("snapshot mirror is not configured"))
		}
		var err error
		s, err = h.mirror.Latest(c.Request().Context())
		if errors.Is(err, domrepo.ErrNoSnapshot) {
			return xhttp.NoContentResponse(c)
		}
		if err != nil {
			h.logger.Error("mirror read error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("mirror read failed").WithError(err))
		}
	}
	if s == nil {
		return xhttp.NoContentResponse(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if !s.ReceivedAt.IsZero() {
		c.Response().Header().Set("X-Received-At", s.ReceivedAt.UTC().Format(time.RFC3339Nano))
	}
	return c.JSONBlob(http.StatusOK, s.Raw)
}

func (h *DashboardEchoHandler) KPI(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.NewKPIView(h.telemetry.LatestSnapshot()))
}

func (h *DashboardEchoHandler) Logs(c echo.Context) error {
	req := &models.LogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entries := h.telemetry.Log().Entries()
	total := len(entries)
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return xhttp.ListResponse(c, entries, int64(total))
}

func (h *DashboardEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.health())
}

// Ready answers 503 unless the telemetry socket is LIVE.
func (h *DashboardEchoHandler) Ready(c echo.Context) error {
	res := h.health()
	if !res.Ready {
		return xhttp.StatusResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardEchoHandler) health() models.HealthResponse {
	st := h.telemetry.CurrentStatus()
	return models.HealthResponse{
		Status:    st,
		Ready:     st == models.StatusLive,
		HasSample: h.telemetry.LatestSnapshot() != nil,
	}
}

// Stream relays connection events as server-sent events until the client leaves
// or the manager shuts down.
func (h *DashboardEchoHandler) Stream(c echo.Context) error {
	// the stream outlives the server write timeout
	_ = http.NewResponseController(c.Response().Writer).SetWriteDeadline(time.Time{})

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.telemetry.Subscribe("sse")
	defer cancel()

	if err := writeEvent(w, "status", h.telemetry.Info()); err != nil {
		return nil
	}
	w.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, string(ev.Kind), ev); err != nil {
				h.logger.Debug("sse write failed", xlogger.Error(err))
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}
