package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"NKDash/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func TestGeneratorDeterministicAndBounded(t *testing.T) {
	a := NewGenerator([]string{"NSE_EQ|RELIANCE", "NSE_EQ|TCS"}, 7)
	b := NewGenerator([]string{"NSE_EQ|RELIANCE", "NSE_EQ|TCS"}, 7)
	for i := 0; i < 200; i++ {
		ma, mb := a.Step(), b.Step()
		if ma.Sentiment != mb.Sentiment || ma.PnL != mb.PnL {
			t.Fatalf("step %d diverged: %+v vs %+v", i, ma, mb)
		}
		if ma.Sentiment < -1 || ma.Sentiment > 1 {
			t.Fatalf("sentiment out of range: %v", ma.Sentiment)
		}
		if len(ma.Positions) != 2 {
			t.Fatalf("positions %d", len(ma.Positions))
		}
	}
}

func TestFrameDecodesAsSnapshot(t *testing.T) {
	g := NewGenerator([]string{"NSE_EQ|INFY"}, 1)
	b, err := json.Marshal(g.Step())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s, err := models.DecodeSnapshot(b, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.ActivePositions() != 1 {
		t.Fatalf("active positions %d", s.ActivePositions())
	}
	if _, ok := s.Sentiment(); !ok {
		t.Fatalf("sentiment missing")
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := echo.New()
	NewHandler(NewGenerator([]string{"NSE_EQ|TCS"}, 3), 10*time.Millisecond, nil).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "Godfather Bot Online" || !st.Running {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStreamPushesFrames(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		typ, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if typ != websocket.TextMessage {
			t.Fatalf("frame %d is not text", i)
		}
		var m Metrics
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if _, ok := m.Positions["NSE_EQ|TCS"]; !ok {
			t.Fatalf("frame %d missing position", i)
		}
	}
}
