// Package app wires relay's components together from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/core/config"
	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/logging"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/abdul-hamid-achik/relay/packages/pool"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

// App owns the logger, executor, history store, pool and session store.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	closers  []io.Closer
	client   *http.Client
	history  history.Store
	pool     *pool.Pool
	sessions *dashboard.SessionStore
}

type options struct {
	logger  *slog.Logger
	console io.Writer
	baseDir string
}

type Option func(*options)

// WithLogger uses logger instead of opening the log file.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConsole mirrors log records to w in text form.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// WithBaseDir confines body file paths to dir.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// New creates an App. On error nothing is left open.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{config: cfg}

	if o.logger != nil {
		a.logger = o.logger
	} else {
		logger, closer, err := logging.InitLogger(logging.Options{
			Path:    cfg.LogPath,
			Debug:   cfg.GetDebug(),
			Console: o.console,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
		a.closers = append(a.closers, closer)
	}

	a.client = http.NewClient(clientOptions(cfg, o.baseDir)...)

	store, err := openHistory(cfg)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.history = store

	a.pool = pool.New(a.client, store,
		pool.WithLogger(a.logger),
		pool.WithTimeout(cfg.TimeoutDuration()),
		pool.WithLimits(pool.Limits{
			MaxConcurrent: cfg.MaxConcurrent,
			Rate:          cfg.Rate,
			Burst:         cfg.Burst,
		}),
	)

	sessionPath, err := cfg.ResolvedSessionPath()
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.sessions = dashboard.NewSessionStore(sessionPath, dashboard.WithSessionLogger(a.logger))

	a.logger.Debug("relay initialized",
		slog.Bool("record_history", cfg.GetRecordHistory()),
		slog.String("session_path", sessionPath),
		slog.Int("max_concurrent", cfg.MaxConcurrent),
		slog.Float64("rate", cfg.Rate),
	)

	return a, nil
}

func clientOptions(cfg *config.Config, baseDir string) []http.ClientOption {
	opts := []http.ClientOption{
		http.WithTimeout(cfg.TimeoutDuration()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithDefaultHeaders(cfg.Headers),
	}
	if cfg.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if cfg.Proxy != "" {
		opts = append(opts, http.WithProxy(cfg.Proxy))
	}
	if baseDir != "" {
		opts = append(opts, http.WithBaseDir(baseDir))
	}
	return opts
}

// openHistory opens the SQLite store, or an in-memory one when recording
// is turned off so the history commands still work for the process.
func openHistory(cfg *config.Config) (history.Store, error) {
	if !cfg.GetRecordHistory() {
		return history.NewMemoryStore(), nil
	}
	path, err := cfg.ResolvedHistoryPath()
	if err != nil {
		return nil, err
	}
	store, err := history.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func (a *App) Config() *config.Config { return a.config }

func (a *App) Logger() *slog.Logger { return a.logger }

func (a *App) Client() *http.Client { return a.client }

func (a *App) History() history.Store { return a.history }

func (a *App) Pool() *pool.Pool { return a.pool }

func (a *App) Sessions() *dashboard.SessionStore { return a.sessions }

// Send dispatches req on slot and blocks until its outcome is known. If ctx
// ends first the request is cancelled and the Cancelled outcome returned.
func (a *App) Send(ctx context.Context, slot string, req *request.Model, opts ...pool.SubmitOption) (manager.Outcome, error) {
	done := make(chan manager.Outcome, 1)
	id, err := a.pool.Submit(slot, req, func(o manager.Outcome) { done <- o }, opts...)
	if err != nil {
		return manager.Outcome{}, err
	}

	select {
	case o := <-done:
		return o, nil
	case <-ctx.Done():
		if active, ok := a.pool.Active(slot); ok && active == id {
			a.pool.Cancel(slot)
		}
	}

	select {
	case o := <-done:
		return o, nil
	case <-time.After(5 * time.Second):
		return manager.Outcome{}, fmt.Errorf("request %s did not settle after cancellation", id)
	}
}

// Close cancels live requests, flushes history and closes the log file.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return a.closeAll()
}

func (a *App) closeAll() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
