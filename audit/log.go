package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/school-auth/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQueueSize       = 1024
	DefaultRetryBaseDelay  = 100 * time.Millisecond
	DefaultRetryMaxDelay   = 10 * time.Second
	DefaultDeadLetterGrace = 5 * time.Minute

	sinkWriteTimeout = 5 * time.Second
)

type pending struct {
	event   SecurityEvent
	barrier bool
	done    chan struct{} // nil for fire-and-forget records
	err     error
}

func (p *pending) finish(err error) {
	if p.done == nil {
		return
	}
	p.err = err
	close(p.done)
}

// Log serialises security events through a single writer goroutine so the
// sink receives them in the order they were recorded.
type Log struct {
	sink      Sink
	queue     chan *pending
	overflow  []*pending
	notify    chan struct{}
	stopping  chan struct{}
	stopped   chan struct{}
	closed    bool
	seq       uint64
	mu        sync.Mutex
	closeOnce sync.Once

	deadLetters []SecurityEvent
	deadMu      sync.RWMutex

	queueSize int
	baseDelay time.Duration
	maxDelay  time.Duration
	grace     time.Duration
	nowTime   func() time.Time
}

// Option configures a Log
type Option func(*Log)

// WithQueueSize sets the bounded queue length before records spill to the overflow buffer.
func WithQueueSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// WithRetry sets the exponential backoff bounds for sink failures.
func WithRetry(base, max time.Duration) Option {
	return func(l *Log) {
		if base > 0 {
			l.baseDelay = base
		}
		if max >= base && max > 0 {
			l.maxDelay = max
		}
	}
}

// WithDeadLetterGrace sets how long one event may keep failing before it is dead-lettered.
func WithDeadLetterGrace(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.grace = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(l *Log) {
		l.nowTime = nowFunc
	}
}

// NewLog starts the writer goroutine. Close must be called to drain it.
func NewLog(sink Sink, options ...Option) (*Log, error) {
	if sink == nil {
		return nil, errors.New("[audit.NewLog] sink is required")
	}
	l := &Log{
		sink:      sink,
		notify:    make(chan struct{}, 1),
		stopping:  make(chan struct{}),
		stopped:   make(chan struct{}),
		queueSize: DefaultQueueSize,
		baseDelay: DefaultRetryBaseDelay,
		maxDelay:  DefaultRetryMaxDelay,
		grace:     DefaultDeadLetterGrace,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	l.queue = make(chan *pending, l.queueSize)
	go l.run()
	return l, nil
}

// Record queues ev without waiting for the sink.
func (l *Log) Record(ctx context.Context, ev SecurityEvent) {
	l.enqueue(&pending{event: ev})
}

// RecordSync queues ev and waits until it is durably written. If ctx ends
// first the event stays queued and ErrSinkUnavailable is returned.
func (l *Log) RecordSync(ctx context.Context, ev SecurityEvent) error {
	p := &pending{event: ev, done: make(chan struct{})}
	if !l.enqueue(p) {
		return ErrClosed
	}
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, ctx.Err())
	}
}

// Flush waits until everything recorded before the call has been written or dead-lettered.
func (l *Log) Flush(ctx context.Context) error {
	p := &pending{barrier: true, done: make(chan struct{})}
	if !l.enqueue(p) {
		return ErrClosed
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Log) enqueue(p *pending) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !p.barrier {
		l.seq++
		p.event.Seq = l.seq
		if p.event.ID == "" {
			p.event.ID = uuid.NewString()
		}
		if p.event.Timestamp.IsZero() {
			p.event.Timestamp = l.nowTime().UTC()
		}
		if p.event.Severity == "" {
			p.event.Severity = SeverityLow
		}
	}

	if l.closed {
		if !p.barrier {
			l.deadLetter(p.event, ErrClosed)
		}
		p.finish(ErrClosed)
		return false
	}

	// Once anything has spilled, later records go behind it to keep FIFO order.
	if len(l.overflow) == 0 {
		select {
		case l.queue <- p:
			return true
		default:
			log.Warn().Int("queue_size", l.queueSize).Msg("audit queue full, spilling to overflow buffer")
		}
	}
	l.overflow = append(l.overflow, p)
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return true
}

func (l *Log) takeOverflow() []*pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.overflow
	l.overflow = nil
	return batch
}

func (l *Log) run() {
	defer close(l.stopped)
	for {
		select {
		case p := <-l.queue:
			l.write(p)
			continue
		default:
		}

		if batch := l.takeOverflow(); len(batch) > 0 {
			for _, p := range batch {
				l.write(p)
			}
			continue
		}

		select {
		case p := <-l.queue:
			l.write(p)
		case <-l.notify:
		case <-l.stopping:
			if l.drained() {
				return
			}
		}
	}
}

func (l *Log) drained() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) == 0 && len(l.overflow) == 0
}

func (l *Log) write(p *pending) {
	if p.barrier {
		p.finish(nil)
		return
	}

	started := time.Now()
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		err := l.sink.Append(ctx, p.event)
		cancel()
		if err == nil {
			p.finish(nil)
			return
		}

		if time.Since(started) >= l.grace || l.isStopping() {
			l.deadLetter(p.event, err)
			p.finish(fmt.Errorf("%w: %v", ErrSinkUnavailable, err))
			return
		}

		delay := l.backoff(attempt)
		log.Warn().Err(err).
			Str("event_type", string(p.event.Type)).
			Uint64("seq", p.event.Seq).
			Dur("retry_in", delay).
			Msg("audit sink write failed")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-l.stopping:
			timer.Stop()
		}
	}
}

func (l *Log) backoff(attempt int) time.Duration {
	delay := l.baseDelay
	for i := 0; i < attempt && delay < l.maxDelay; i++ {
		delay *= 2
	}
	if delay > l.maxDelay {
		delay = l.maxDelay
	}
	return delay
}

func (l *Log) isStopping() bool {
	select {
	case <-l.stopping:
		return true
	default:
		return false
	}
}

func (l *Log) deadLetter(ev SecurityEvent, cause error) {
	l.deadMu.Lock()
	l.deadLetters = append(l.deadLetters, ev)
	l.deadMu.Unlock()

	log.Error().Err(cause).
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("tenant_id", ev.TenantID).
		Str("identity_id", ev.IdentityID).
		Str("severity", string(ev.Severity)).
		Time("timestamp", ev.Timestamp).
		Msg("audit event dead-lettered")
}

// DeadLetters returns events that could not be written to the sink.
func (l *Log) DeadLetters() []SecurityEvent {
	l.deadMu.RLock()
	defer l.deadMu.RUnlock()
	return append([]SecurityEvent(nil), l.deadLetters...)
}

// Close stops accepting events and waits for the queue to drain. Events that
// still cannot be written are dead-lettered.
func (l *Log) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stopping)
	})
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query returns a tenant's events in chronological order. Super-admins may
// pass an empty tenantID to read every tenant; admins only read their own
// tenant; every other role is refused.
func (l *Log) Query(ctx context.Context, tenantID string, requester Requester, types ...EventType) ([]SecurityEvent, error) {
	filter := Filter{TenantID: tenantID, Types: types}
	switch requester.Role {
	case identity.RoleSuperAdmin:
		filter.AllTenants = tenantID == ""
	case identity.RoleAdmin:
		if tenantID == "" {
			filter.TenantID = requester.TenantID
		}
		if requester.TenantID == "" || filter.TenantID != requester.TenantID {
			l.recordQuery(ctx, filter.TenantID, requester, SeverityHigh, "denied")
			return nil, ErrForbidden
		}
	default:
		l.recordQuery(ctx, filter.TenantID, requester, SeverityHigh, "denied")
		return nil, ErrForbidden
	}

	events, err := l.sink.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "[audit.Query]")
	}
	l.recordQuery(ctx, filter.TenantID, requester, SeverityLow, fmt.Sprintf("returned %d events", len(events)))
	return events, nil
}

func (l *Log) recordQuery(ctx context.Context, tenantID string, requester Requester, severity Severity, detail string) {
	if tenantID == "" {
		tenantID = requester.TenantID
	}
	l.Record(ctx, SecurityEvent{
		Type:       EventAuditQuery,
		IdentityID: requester.IdentityID,
		TenantID:   tenantID,
		Detail:     detail,
		Severity:   severity,
	})
}
