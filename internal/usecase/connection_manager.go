package usecase

import (
	"context"
	"sync"
	"time"

	"NKDash/internal/domain/models"
	drepo "NKDash/internal/domain/repository"
	"NKDash/internal/service/eventlog"
	applogger "NKDash/pkg/logger"
)

// ConnectedMessage is written to the event log on every successful establishment.
const ConnectedMessage = "System Connected to Neural Core."

// DefaultReconnectDelay is the fixed pause between a closure and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// Scheduler runs f once after d. The returned func cancels it if it has not fired.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// StatusInfo is a read-only view of the connection for the API.
type StatusInfo struct {
	Status         models.ConnectionStatus `json:"status"`
	ConnectedSince *time.Time              `json:"connected_since,omitempty"`
	Reconnects     int                     `json:"reconnects"`
}

// ConnectionManager owns the single telemetry socket and keeps the status tag and
// latest snapshot consistent with its lifecycle. It reconnects after a fixed delay
// for as long as it is not shut down.
type ConnectionManager struct {
	dialer    drepo.Dialer
	url       string
	delay     time.Duration
	ring      *eventlog.Ring
	metrics   drepo.Metrics
	logger    *applogger.Logger
	schedule  Scheduler
	now       func() time.Time
	subBuffer int

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.RWMutex
	status         models.ConnectionStatus
	snapshot       *models.Snapshot
	started        bool
	closed         bool
	attempt        uint64
	conn           drepo.Conn
	stopTimer      func() bool
	seq            uint64
	subs           map[uint64]*subscriber
	nextSubID      uint64
	connectedSince time.Time
	reconnects     int
}

type subscriber struct {
	name string
	ch   chan models.ConnectionEvent
}

type ManagerOption func(*ConnectionManager)

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) ManagerOption {
	return func(m *ConnectionManager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithScheduler replaces time.AfterFunc for reconnect timers.
func WithScheduler(s Scheduler) ManagerOption {
	return func(m *ConnectionManager) {
		if s != nil {
			m.schedule = s
		}
	}
}

// WithManagerClock replaces the clock used to stamp snapshots and events.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *ConnectionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithManagerLogger sets the structured logger.
func WithManagerLogger(l *applogger.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerMetrics sets the metrics recorder.
func WithManagerMetrics(r drepo.Metrics) ManagerOption {
	return func(m *ConnectionManager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithSubscriberBuffer sets the channel capacity handed to subscribers.
func WithSubscriberBuffer(n int) ManagerOption {
	return func(m *ConnectionManager) {
		if n > 0 {
			m.subBuffer = n
		}
	}
}

// NewConnectionManager creates a manager in the DISCONNECTED state.
func NewConnectionManager(dialer drepo.Dialer, url string, ring *eventlog.Ring, opts ...ManagerOption) *ConnectionManager {
	if ring == nil {
		ring = eventlog.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectionManager{
		dialer:    dialer,
		url:       url,
		delay:     DefaultReconnectDelay,
		ring:      ring,
		metrics:   nopMetrics{},
		logger:    applogger.Nop(),
		schedule:  afterFunc,
		now:       time.Now,
		subBuffer: 64,
		ctx:       ctx,
		cancel:    cancel,
		status:    models.StatusDisconnected,
		subs:      make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start ensures a connection attempt is in flight. Calls after the first, and calls
// after Shutdown, are no-ops. When ctx ends the manager shuts itself down.
func (m *ConnectionManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.attempt++
	attempt := m.attempt
	m.metrics.RecordStatus(m.status)
	m.mu.Unlock()

	m.logger.Info("telemetry connection starting", applogger.String("url", m.url))
	go m.connect(attempt)

	go func() {
		select {
		case <-ctx.Done():
			m.Shutdown()
		case <-m.ctx.Done():
		}
	}()
}

// CurrentStatus returns the connectivity tag.
func (m *ConnectionManager) CurrentStatus() models.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LatestSnapshot returns the last decoded payload, or nil before the first one.
func (m *ConnectionManager) LatestSnapshot() *models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Info returns status plus connection bookkeeping.
func (m *ConnectionManager) Info() StatusInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := StatusInfo{Status: m.status, Reconnects: m.reconnects}
	if m.status == models.StatusLive {
		t := m.connectedSince
		info.ConnectedSince = &t
	}
	return info
}

// Log returns the activity trail the manager writes to.
func (m *ConnectionManager) Log() *eventlog.Ring { return m.ring }

// Subscribe registers a listener for lifecycle events. Events are delivered in
// order; a full buffer drops events for that listener only. The channel is closed
// by the returned cancel func or by Shutdown.
func (m *ConnectionManager) Subscribe(name string) (<-chan models.ConnectionEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.ConnectionEvent, m.subBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.nextSubID++
	id := m.nextSubID
	m.subs[id] = &subscriber{name: name, ch: ch}

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(s.ch)
		}
	}
}

// Shutdown closes the live connection, cancels a pending reconnect and closes all
// subscriptions. Nothing mutates the manager after it returns.
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	conn := m.conn
	m.conn = nil
	for id, s := range m.subs {
		delete(m.subs, id)
		close(s.ch)
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("telemetry close error", applogger.Error(err))
		}
	}
	m.logger.Info("telemetry connection shut down")
}

func (m *ConnectionManager) connect(attempt uint64) {
	start := time.Now()
	conn, err := m.dialer.Dial(m.ctx, m.url)
	if err != nil {
		m.handleClose(attempt, err)
		return
	}

	m.mu.Lock()
	if m.stale(attempt) {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.setStatusLocked(models.StatusLive)
	m.connectedSince = m.now()
	m.ring.Append(ConnectedMessage)
	m.publishLocked(models.ConnectionEvent{Kind: models.EventConnected})
	m.mu.Unlock()

	m.metrics.RecordLatency("telemetry_dial", time.Since(start).Seconds())
	m.logger.Info("telemetry connected", applogger.String("url", m.url))

	m.readLoop(attempt, conn)
}

func (m *ConnectionManager) readLoop(attempt uint64, conn drepo.Conn) {
	for {
		b, err := conn.Read()
		if err != nil {
			m.handleClose(attempt, err)
			return
		}
		m.handleFrame(attempt, b)
	}
}

func (m *ConnectionManager) handleFrame(attempt uint64, b []byte) {
	snap, err := models.DecodeSnapshot(b, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(attempt) {
		return
	}
	if err != nil {
		// keep the previous snapshot and the connection
		m.metrics.RecordDecodeError()
		m.logger.Warn("telemetry frame discarded", applogger.Error(err), applogger.Int("bytes", len(b)))
		return
	}
	m.snapshot = snap
	m.metrics.RecordMessage()
	m.publishLocked(models.ConnectionEvent{Kind: models.EventMessageReceived, Snapshot: snap})
}

// handleClose treats every closure the same way: OFFLINE plus one scheduled retry.
func (m *ConnectionManager) handleClose(attempt uint64, cause error) {
	m.mu.Lock()
	if m.stale(attempt) || m.stopTimer != nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.setStatusLocked(models.StatusOffline)
	m.stopTimer = m.schedule(m.delay, func() { m.reconnect(attempt) })
	ev := models.ConnectionEvent{Kind: models.EventDisconnected}
	if cause != nil {
		ev.Err = cause.Error()
	}
	m.publishLocked(ev)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Warn("telemetry disconnected",
		applogger.Error(cause),
		applogger.Uint64("attempt", attempt),
		applogger.Duration("retry_in_ms", m.delay),
	)
}

func (m *ConnectionManager) reconnect(prev uint64) {
	m.mu.Lock()
	if m.stale(prev) {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	m.attempt++
	next := m.attempt
	m.reconnects++
	m.mu.Unlock()

	m.metrics.RecordReconnect()
	m.connect(next)
}

// stale reports whether events from attempt must be ignored. Caller holds mu.
func (m *ConnectionManager) stale(attempt uint64) bool {
	return m.closed || attempt != m.attempt
}

func (m *ConnectionManager) setStatusLocked(s models.ConnectionStatus) {
	m.status = s
	m.metrics.RecordStatus(s)
}

func (m *ConnectionManager) publishLocked(ev models.ConnectionEvent) {
	m.seq++
	ev.Seq = m.seq
	ev.Status = m.status
	ev.At = m.now()
	for _, s := range m.subs {
		select {
		case s.ch <- ev:
		default:
			m.metrics.RecordDropped(s.name)
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordStatus(models.ConnectionStatus) {}
func (nopMetrics) RecordMessage()                       {}
func (nopMetrics) RecordDecodeError()                   {}
func (nopMetrics) RecordReconnect()                     {}
func (nopMetrics) RecordDropped(string)                 {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordLatency(string, float64)        {}
