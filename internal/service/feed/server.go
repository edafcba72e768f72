package feed

import (
	"net/http"
	"sync/atomic"
	"time"

	xhttp "NKDash/pkg/http"
	applogger "NKDash/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// StatusResponse is served on the root path.
type StatusResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Clients int64  `json:"clients"`
}

// Handler serves the development telemetry feed.
type Handler struct {
	gen      *Generator
	interval time.Duration
	logger   *applogger.Logger
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

var _ xhttp.Handler = (*Handler)(nil)

func NewHandler(gen *Generator, interval time.Duration, l *applogger.Logger) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Handler{
		gen:      gen,
		interval: interval,
		logger:   l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/metrics", h.Metrics)
	e.GET("/ws", h.Stream)
}

func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "Godfather Bot Online",
		Running: true,
		Clients: h.clients.Load(),
	})
}

func (h *Handler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gen.Current())
}

// Stream pushes the current frame once per interval until the client goes away.
func (h *Handler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	n := h.clients.Add(1)
	defer h.clients.Add(-1)
	h.logger.Info("feed client connected", applogger.String("remote", c.RealIP()), applogger.Int64("clients", n))

	// drain control frames so a client close is noticed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			h.logger.Info("feed client disconnected", applogger.String("remote", c.RealIP()))
			return nil
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.interval * 5))
			if err := conn.WriteJSON(h.gen.Current()); err != nil {
				h.logger.Info("feed client write failed", applogger.Error(err))
				return nil
			}
		}
	}
}
