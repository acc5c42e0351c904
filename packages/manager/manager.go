// Package manager owns the lifecycle of a single dispatched request.
//
// A Manager is created around an immutable request.Model, dispatched at
// most once, and ends in exactly one of Completed, Failed or Cancelled.
// The terminal Outcome is published once on Result; anything that arrives
// afterwards is logged and dropped.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/logging"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/google/uuid"
)

// Executor performs the network exchange for one request.
type Executor interface {
	Execute(ctx context.Context, req *request.Model) (*http.Response, error)
}

// Gate bounds concurrent executions. Acquire blocks until a slot is free or
// ctx ends.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Outcome is the terminal notification of a manager.
type Outcome struct {
	ManagerID  string
	State      State
	Request    *request.Model
	Response   *http.Response
	Failure    *failure.Failure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time between dispatch and the terminal transition.
// It is zero for a manager cancelled before dispatch.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTimeout bounds each Executor call with a context deadline.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

func WithGate(g Gate) Option {
	return func(m *Manager) {
		m.gate = g
	}
}

type Manager struct {
	id      string
	req     *request.Model
	exec    Executor
	logger  *slog.Logger
	timeout time.Duration
	gate    Gate
	now     func() time.Time

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	startedAt time.Time
	outcome   Outcome
	result    chan Outcome
	done      chan struct{}
}

func New(req *request.Model, exec Executor, opts ...Option) *Manager {
	m := &Manager{
		id:     uuid.NewString(),
		req:    req,
		exec:   exec,
		now:    time.Now,
		state:  Created,
		result: make(chan Outcome, 1),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = logging.OrNop(m.logger).With(slog.String("manager_id", m.id))
	return m
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) Request() *request.Model { return m.req }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch starts the Executor on its own goroutine and returns at once.
// It fails with *failure.InvalidStateError unless the manager is Created.
func (m *Manager) Dispatch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Created {
		return &failure.InvalidStateError{Op: "dispatch", State: m.state.String()}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = Dispatched
	m.startedAt = m.now()

	m.logger.Debug("request dispatched",
		slog.String("method", string(m.req.Method())),
		slog.String("target", m.req.Target()),
		slog.String("content_type", m.req.ContentType().MIME()))

	go m.run(runCtx)
	return nil
}

func (m *Manager) run(ctx context.Context) {
	resp, err := m.execute(ctx)
	if err == nil && resp == nil {
		err = &failure.MalformedResponseError{Err: errors.New("executor returned no response")}
	}
	m.complete(resp, err)
}

func (m *Manager) execute(ctx context.Context) (*http.Response, error) {
	if m.gate != nil {
		if err := m.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer m.gate.Release()
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	return m.exec.Execute(ctx, m.req)
}

// complete records the Executor's result. Only the first result for a
// Dispatched manager is committed; it reports whether this one was.
func (m *Manager) complete(resp *http.Response, err error) bool {
	m.mu.Lock()
	if m.state != Dispatched {
		state := m.state
		m.mu.Unlock()

		if state == Cancelled {
			m.logger.Info("discarded result after cancellation",
				slog.String("reason", failure.ErrCancellationRace.Error()),
				slog.Bool("had_error", err != nil))
		} else {
			m.logger.Info("discarded duplicate completion", slog.String("state", state.String()))
		}
		return false
	}

	o := Outcome{
		ManagerID:  m.id,
		Request:    m.req,
		StartedAt:  m.startedAt,
		FinishedAt: m.now(),
	}
	if err != nil {
		o.State = Failed
		o.Failure = failure.Classify(err)
	} else {
		o.State = Completed
		o.Response = resp
	}
	m.commitLocked(o)
	m.mu.Unlock()

	if o.Failure != nil {
		m.logger.Error("request failed",
			slog.String("kind", o.Failure.Kind.String()),
			slog.String("error", o.Failure.Message),
			slog.Duration("duration", o.Duration()))
	} else {
		m.logger.Info("request completed",
			slog.Int("status", resp.StatusCode),
			slog.Int64("size", resp.Size),
			slog.Duration("duration", o.Duration()))
	}
	return true
}

// Cancel moves a Created or Dispatched manager to Cancelled and aborts the
// in-flight call. It returns false, doing nothing, once the manager is
// terminal.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return false
	}

	from := m.state
	m.commitLocked(Outcome{
		ManagerID:  m.id,
		State:      Cancelled,
		Request:    m.req,
		StartedAt:  m.startedAt,
		FinishedAt: m.now(),
	})
	m.mu.Unlock()

	m.logger.Info("request cancelled", slog.String("from", from.String()))
	return true
}

// commitLocked performs the single terminal transition. m.mu must be held.
func (m *Manager) commitLocked(o Outcome) {
	m.state = o.State
	m.outcome = o
	if m.cancel != nil {
		m.cancel()
	}
	m.result <- o
	close(m.done)
}

// Result delivers the terminal Outcome exactly once.
func (m *Manager) Result() <-chan Outcome { return m.result }

// Done is closed at the terminal transition.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Outcome returns the terminal outcome, if there is one yet.
func (m *Manager) Outcome() (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.state.Terminal()
}

// Wait blocks until the manager is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-m.done:
		o, _ := m.Outcome()
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
