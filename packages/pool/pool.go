// Package pool dispatches composer requests, one live request per slot.
//
// A slot is a composer tab. Submitting to a slot that already has a request
// in flight cancels that request first; its outcome is reported as
// Cancelled and never reaches history.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/logging"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

var (
	ErrClosed     = errors.New("pool is closed")
	ErrNilRequest = errors.New("nil request")
)

// Observer receives the terminal outcome of a submitted request. It runs on
// a pool goroutine.
type Observer func(manager.Outcome)

type Option func(*Pool)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

func WithLimits(l Limits) Option {
	return func(p *Pool) {
		p.throttle = NewThrottle(l)
	}
}

// WithTimeout sets the default per-dispatch timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.timeout = d
	}
}

type submitOptions struct {
	timeout   time.Duration
	noHistory bool
}

type SubmitOption func(*submitOptions)

// WithDispatchTimeout overrides the pool timeout for one submission.
func WithDispatchTimeout(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		o.timeout = d
	}
}

// WithoutHistory keeps the outcome out of the history store.
func WithoutHistory() SubmitOption {
	return func(o *submitOptions) {
		o.noHistory = true
	}
}

type Pool struct {
	exec     manager.Executor
	store    history.Store
	logger   *slog.Logger
	timeout  time.Duration
	throttle *Throttle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	slots  map[string]*manager.Manager
	closed bool

	// created is called with each new manager before dispatch. Tests only.
	created func(slot string, m *manager.Manager)
}

// New creates a pool. store may be nil, in which case nothing is recorded.
func New(exec manager.Executor, store history.Store, opts ...Option) *Pool {
	p := &Pool{
		exec:  exec,
		store: store,
		slots: make(map[string]*manager.Manager),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = logging.OrNop(p.logger)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Submit cancels whatever is live on slot, then dispatches req there and
// returns the new manager's ID. It never blocks on network I/O. A nil req
// is rejected and leaves the slot untouched.
func (p *Pool) Submit(slot string, req *request.Model, observer Observer, opts ...SubmitOption) (string, error) {
	if req == nil {
		return "", ErrNilRequest
	}

	so := submitOptions{timeout: p.timeout}
	for _, opt := range opts {
		opt(&so)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", ErrClosed
	}

	if prev, ok := p.slots[slot]; ok {
		if prev.Cancel() {
			p.logger.Info("superseded in-flight request",
				slog.String("slot", slot),
				slog.String("manager_id", prev.ID()))
		}
		delete(p.slots, slot)
	}

	mopts := []manager.Option{
		manager.WithLogger(p.logger.With(slog.String("slot", slot))),
		manager.WithTimeout(so.timeout),
	}
	if p.throttle != nil {
		mopts = append(mopts, manager.WithGate(p.throttle))
	}
	m := manager.New(req, p.exec, mopts...)

	if p.created != nil {
		p.created(slot, m)
	}

	if err := m.Dispatch(p.ctx); err != nil {
		return "", err
	}
	p.slots[slot] = m

	p.wg.Add(1)
	go p.watch(slot, m, observer, so)

	return m.ID(), nil
}

func (p *Pool) watch(slot string, m *manager.Manager, observer Observer, so submitOptions) {
	defer p.wg.Done()

	o := <-m.Result()

	p.mu.Lock()
	if p.slots[slot] == m {
		delete(p.slots, slot)
	}
	p.mu.Unlock()

	if observer != nil {
		observer(o)
	}

	if so.noHistory || p.store == nil {
		return
	}
	if o.State != manager.Completed && o.State != manager.Failed {
		return
	}
	p.record(slot, o)
}

func (p *Pool) record(slot string, o manager.Outcome) {
	rec, err := history.NewRecord(slot, o)
	if err != nil {
		p.logger.Error("failed to build history record", slog.String("slot", slot), slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.Append(ctx, rec); err != nil {
		p.logger.Error("failed to append history record",
			slog.String("slot", slot),
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("history record appended", slog.String("slot", slot), slog.String("record_id", rec.ID))
}

// Cancel cancels the live request on slot, if any.
func (p *Pool) Cancel(slot string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.slots[slot]
	if !ok {
		return false
	}
	delete(p.slots, slot)
	return m.Cancel()
}

// Active returns the ID of the live manager on slot.
func (p *Pool) Active(slot string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.slots[slot]
	if !ok {
		return "", false
	}
	return m.ID(), true
}

// Len is the number of slots with a live request.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Wait blocks until every submitted request has been observed and recorded.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close cancels every live request, waits for observers and rejects further
// submissions.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	for slot, m := range p.slots {
		m.Cancel()
		delete(p.slots, slot)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
