package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"NKDash/internal/domain/models"
	"NKDash/internal/service/ratelimit"
)

type stubMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newStubMetrics() *stubMetrics { return &stubMetrics{errors: map[string]int{}} }

func (m *stubMetrics) RecordStatus(models.ConnectionStatus) {}
func (m *stubMetrics) RecordMessage()                       {}
func (m *stubMetrics) RecordDecodeError()                   {}
func (m *stubMetrics) RecordReconnect()                     {}
func (m *stubMetrics) RecordDropped(string)                 {}
func (m *stubMetrics) RecordLatency(string, float64)        {}
func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *stubMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type stubMirror struct {
	mu       sync.Mutex
	failures int
	written  []*models.Snapshot
	closed   bool
}

func (m *stubMirror) Mirror(_ context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("redis unavailable")
	}
	m.written = append(m.written, s)
	return nil
}

func (m *stubMirror) Latest(context.Context) (*models.Snapshot, error) { return nil, nil }

func (m *stubMirror) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *stubMirror) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func (m *stubMirror) lastPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.written) == 0 {
		return 0
	}
	return m.written[len(m.written)-1].PnL()
}

type stubPublisher struct {
	mu  sync.Mutex
	evs []models.ConnectionEvent
}

func (p *stubPublisher) Publish(_ context.Context, ev models.ConnectionEvent) error {
	p.mu.Lock()
	p.evs = append(p.evs, ev)
	p.mu.Unlock()
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) kinds() []models.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventKind, len(p.evs))
	for i, ev := range p.evs {
		out[i] = ev.Kind
	}
	return out
}

func msgEvent(seq uint64) models.ConnectionEvent { return pnlEvent(seq, 1) }

func pnlEvent(seq uint64, pnl int) models.ConnectionEvent {
	s, _ := models.DecodeSnapshot([]byte(fmt.Sprintf(`{"pnl":%d}`, pnl)), time.Now())
	return models.ConnectionEvent{Kind: models.EventMessageReceived, Seq: seq, Snapshot: s}
}

func TestProcessForwardsAllEventsAndMirrorsMessages(t *testing.T) {
	mirror := &stubMirror{}
	pub := &stubPublisher{}
	p := NewEventPipeline(newStubMetrics(), WithMirror(mirror), WithPublisher(pub), WithMaxRPS(100))

	p.Process(context.Background(), models.ConnectionEvent{Kind: models.EventConnected, Seq: 1})
	p.Process(context.Background(), msgEvent(2))
	p.Process(context.Background(), models.ConnectionEvent{Kind: models.EventDisconnected, Seq: 3})

	kinds := pub.kinds()
	if len(kinds) != 3 || kinds[0] != models.EventConnected || kinds[2] != models.EventDisconnected {
		t.Fatalf("unexpected forwarded events %v", kinds)
	}
	if mirror.writes() != 1 {
		t.Fatalf("expected 1 mirror write, got %d", mirror.writes())
	}
}

func TestMirrorThrottled(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	mirror := &stubMirror{}
	metrics := newStubMetrics()
	p := NewEventPipeline(metrics, WithMirror(mirror), WithMaxRPS(2),
		WithLimiter(ratelimit.NewWithClock(func() time.Time { return now })))

	for i := 0; i < 5; i++ {
		p.Process(context.Background(), msgEvent(uint64(i)))
	}
	if mirror.writes() != 2 {
		t.Fatalf("expected 2 writes within the second, got %d", mirror.writes())
	}
	if metrics.count("pipeline_throttle") != 3 {
		t.Fatalf("throttle count %d", metrics.count("pipeline_throttle"))
	}
}

func TestFailedWriteRetriedInBackground(t *testing.T) {
	mirror := &stubMirror{failures: 1}
	metrics := newStubMetrics()
	p := NewEventPipeline(metrics, WithMirror(mirror))

	events := make(chan models.ConnectionEvent, 1)
	p.Start(context.Background(), events)
	defer p.Stop()

	events <- msgEvent(1)
	deadline := time.Now().Add(2 * time.Second)
	for mirror.writes() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered write never retried")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if metrics.count(sinkMirror) != 1 {
		t.Fatalf("expected one recorded sink error, got %d", metrics.count(sinkMirror))
	}
}

func TestFailedWriteNotReplayedOverNewerSnapshot(t *testing.T) {
	mirror := &stubMirror{failures: 1}
	metrics := newStubMetrics()
	p := NewEventPipeline(metrics, WithMirror(mirror), WithMaxRPS(100))
	ctx := context.Background()

	p.Process(ctx, pnlEvent(1, 1))
	p.Process(ctx, pnlEvent(2, 2))
	if err := p.flushMirror(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	events := make(chan models.ConnectionEvent)
	p.Start(ctx, events)
	p.Stop()

	if mirror.writes() != 1 {
		t.Fatalf("expected only the newer snapshot to be written, got %d writes", mirror.writes())
	}
	if got := mirror.lastPnL(); got != 2 {
		t.Fatalf("mirror holds pnl %v, want 2", got)
	}
	if metrics.count(sinkMirror) != 1 {
		t.Fatalf("expected one recorded sink error, got %d", metrics.count(sinkMirror))
	}
}

func TestThrottledTailEventuallyMirrored(t *testing.T) {
	mirror := &stubMirror{}
	metrics := newStubMetrics()
	p := NewEventPipeline(metrics, WithMirror(mirror), WithMaxRPS(1))

	events := make(chan models.ConnectionEvent, 3)
	p.Start(context.Background(), events)
	defer p.Stop()

	for i := 1; i <= 3; i++ {
		events <- pnlEvent(uint64(i), i)
	}
	deadline := time.Now().Add(3 * time.Second)
	for mirror.lastPnL() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("throttled tail never mirrored, last pnl %v", mirror.lastPnL())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if metrics.count("pipeline_throttle") == 0 {
		t.Fatalf("expected throttled writes to be counted")
	}
}

func TestStopFlushesPendingSnapshot(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	mirror := &stubMirror{}
	p := NewEventPipeline(newStubMetrics(), WithMirror(mirror), WithMaxRPS(1),
		WithLimiter(ratelimit.NewWithClock(func() time.Time { return now })))

	p.Process(context.Background(), pnlEvent(1, 1))
	p.Process(context.Background(), pnlEvent(2, 2))
	p.Stop()

	if got := mirror.lastPnL(); got != 2 {
		t.Fatalf("mirror holds pnl %v after stop, want 2", got)
	}
}

func TestStartAfterStopIsNoop(t *testing.T) {
	mirror := &stubMirror{}
	p := NewEventPipeline(newStubMetrics(), WithMirror(mirror))
	events := make(chan models.ConnectionEvent)

	p.Start(context.Background(), events)
	p.Stop()
	p.Start(context.Background(), events)
	p.Stop()

	if !mirror.closed {
		t.Fatalf("mirror not closed")
	}
}

func TestStopClosesSinksAndIsIdempotent(t *testing.T) {
	mirror := &stubMirror{}
	p := NewEventPipeline(newStubMetrics(), WithMirror(mirror))
	events := make(chan models.ConnectionEvent)
	p.Start(context.Background(), events)
	p.Stop()
	p.Stop()
	if !mirror.closed {
		t.Fatalf("mirror not closed")
	}
}

func TestEnabled(t *testing.T) {
	if NewEventPipeline(newStubMetrics()).Enabled() {
		t.Fatalf("pipeline without sinks reported enabled")
	}
	if !NewEventPipeline(newStubMetrics(), WithPublisher(&stubPublisher{})).Enabled() {
		t.Fatalf("pipeline with publisher reported disabled")
	}
}
