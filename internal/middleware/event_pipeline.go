package middleware

import (
	"context"
	"sync"
	"time"

	"NKDash/internal/domain/models"
	domrepo "NKDash/internal/domain/repository"
	"NKDash/internal/service/ratelimit"
	applogger "NKDash/pkg/logger"
)

const (
	sinkMirror    = "redis_mirror"
	sinkPublisher = "kafka_events"

	minBackoff = 50 * time.Millisecond
	maxBackoff = 2 * time.Second
)

// EventPipeline sits between the connection manager and the external sinks.
// Every lifecycle event is forwarded to the publisher; failed publishes are
// buffered for background retry. The mirror only ever needs the newest snapshot,
// so it keeps one pending slot instead of a queue: newer snapshots replace it,
// throttled or failed writes leave it for the background loop.
type EventPipeline struct {
	mirror    domrepo.SnapshotMirror
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	limiter   *ratelimit.Limiter
	maxRPS    int
	bufSize   int
	timeout   time.Duration
	bufCh     chan models.ConnectionEvent
	kick      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	// writeMu serializes mirror writes; slotMu guards the pending slot.
	writeMu sync.Mutex
	slotMu  sync.Mutex
	slot    *models.Snapshot
	slotGen uint64
}

type PipelineOption func(*EventPipeline)

// WithMirror sets the snapshot mirror sink.
func WithMirror(m domrepo.SnapshotMirror) PipelineOption {
	return func(p *EventPipeline) { p.mirror = m }
}

// WithPublisher sets the event publisher sink.
func WithPublisher(pub domrepo.EventPublisher) PipelineOption {
	return func(p *EventPipeline) { p.publisher = pub }
}

// WithMaxRPS caps mirror writes per second.
func WithMaxRPS(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the publish retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithLimiter replaces the token bucket used for mirror throttling.
func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *EventPipeline) {
		if l != nil {
			p.limiter = l
		}
	}
}

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *EventPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewEventPipeline creates a new pipeline. Sinks left nil are skipped.
func NewEventPipeline(metrics domrepo.Metrics, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		metrics: metrics,
		logger:  applogger.Nop(),
		limiter: ratelimit.New(),
		maxRPS:  5,
		bufSize: 256,
		timeout: 2 * time.Second,
		kick:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.ConnectionEvent, p.bufSize)
	return p
}

// Enabled reports whether any sink is configured.
func (p *EventPipeline) Enabled() bool { return p.mirror != nil || p.publisher != nil }

// Start consumes events until the channel closes or Stop is called, and runs the
// background loops. It does nothing once the pipeline has been stopped.
func (p *EventPipeline) Start(ctx context.Context, events <-chan models.ConnectionEvent) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p.Process(ctx, ev)
			}
		}
	}()
	go func() {
		defer p.wg.Done()
		p.retryLoop(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.mirrorLoop(ctx)
	}()
}

// Stop stops the loops, makes a last attempt at the pending snapshot and closes
// the sinks. Only the first call has an effect.
func (p *EventPipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stopCh)
		p.wg.Wait()

		if p.mirror != nil {
			if err := p.flushMirror(context.Background()); err != nil {
				p.logger.Warn("pending snapshot not mirrored", applogger.Error(err))
			}
			if err := p.mirror.Close(); err != nil {
				p.logger.Warn("mirror close error", applogger.Error(err))
			}
		}
		if p.publisher != nil {
			if err := p.publisher.Close(); err != nil {
				p.logger.Warn("publisher close error", applogger.Error(err))
			}
		}
	})
}

// Process dispatches one event to every configured sink.
func (p *EventPipeline) Process(ctx context.Context, ev models.ConnectionEvent) {
	if p.publisher != nil {
		p.publish(ctx, ev)
	}
	if p.mirror != nil && ev.Kind == models.EventMessageReceived && ev.Snapshot != nil {
		p.mirrorSnapshot(ctx, ev.Snapshot)
	}
}

func (p *EventPipeline) publish(ctx context.Context, ev models.ConnectionEvent) {
	if err := p.sendEvent(ctx, ev); err != nil {
		select {
		case p.bufCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
	}
}

func (p *EventPipeline) sendEvent(ctx context.Context, ev models.ConnectionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.metrics.RecordError(sinkPublisher)
		p.logger.Error("sink write failed", applogger.String("sink", sinkPublisher), applogger.Error(err))
		return err
	}
	p.metrics.RecordLatency(sinkPublisher, time.Since(start).Seconds())
	return nil
}

func (p *EventPipeline) mirrorSnapshot(ctx context.Context, s *models.Snapshot) {
	p.slotMu.Lock()
	p.slot = s
	p.slotGen++
	p.slotMu.Unlock()

	if !p.limiter.Allow(sinkMirror, float64(p.maxRPS), float64(p.maxRPS)) {
		p.metrics.RecordError("pipeline_throttle")
		p.wakeMirror()
		return
	}
	if err := p.flushMirror(ctx); err != nil {
		p.wakeMirror()
	}
}

// flushMirror writes whatever snapshot is pending. The slot is cleared only if
// no newer snapshot arrived during the write.
func (p *EventPipeline) flushMirror(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.slotMu.Lock()
	s, gen := p.slot, p.slotGen
	p.slotMu.Unlock()
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	if err := p.mirror.Mirror(ctx, s); err != nil {
		p.metrics.RecordError(sinkMirror)
		p.logger.Error("sink write failed", applogger.String("sink", sinkMirror), applogger.Error(err))
		return err
	}
	p.metrics.RecordLatency(sinkMirror, time.Since(start).Seconds())

	p.slotMu.Lock()
	if p.slotGen == gen {
		p.slot = nil
	}
	p.slotMu.Unlock()
	return nil
}

func (p *EventPipeline) wakeMirror() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *EventPipeline) mirrorPending() bool {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()
	return p.slot != nil
}

// mirrorLoop writes the pending snapshot left by throttling or a failed write,
// respecting the rate cap and backing off while the mirror keeps failing.
func (p *EventPipeline) mirrorLoop(ctx context.Context) {
	interval := time.Second / time.Duration(p.maxRPS)
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.kick:
		}
		for p.mirrorPending() {
			wait := interval
			if p.limiter.Allow(sinkMirror, float64(p.maxRPS), float64(p.maxRPS)) {
				if err := p.flushMirror(ctx); err == nil {
					backoff = minBackoff
					continue
				}
				p.metrics.RecordError("pipeline_retry")
				wait = backoff
				if backoff < maxBackoff {
					backoff *= 2
				}
			}
			select {
			case <-time.After(wait):
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *EventPipeline) retryLoop(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.bufCh:
			if err := p.sendEvent(ctx, ev); err != nil {
				if backoff < maxBackoff {
					backoff *= 2
				}
				p.metrics.RecordError("pipeline_retry")
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				}
				select {
				case p.bufCh <- ev:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = minBackoff
		}
	}
}

// Buffered returns how many events wait for a publish retry.
func (p *EventPipeline) Buffered() int { return len(p.bufCh) }

type nopMetrics struct{}

func (nopMetrics) RecordStatus(models.ConnectionStatus) {}
func (nopMetrics) RecordMessage()                       {}
func (nopMetrics) RecordDecodeError()                   {}
func (nopMetrics) RecordReconnect()                     {}
func (nopMetrics) RecordDropped(string)                 {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordLatency(string, float64)        {}
