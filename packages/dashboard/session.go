package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/logging"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WatchDebounceDelay coalesces bursts of file events into one reload.
const WatchDebounceDelay = 300 * time.Millisecond

// Tab is one saved composer tab.
type Tab struct {
	Slot  string `yaml:"slot" json:"slot"`
	State State  `yaml:"state" json:"state"`
}

// Session is the set of open composer tabs, in display order.
type Session struct {
	Tabs []Tab `yaml:"tabs" json:"tabs"`
}

func (s *Session) Get(slot string) (State, bool) {
	for _, t := range s.Tabs {
		if t.Slot == slot {
			return t.State, true
		}
	}
	return State{}, false
}

// Set replaces the tab for slot, or appends a new one.
func (s *Session) Set(slot string, state State) {
	for i := range s.Tabs {
		if s.Tabs[i].Slot == slot {
			s.Tabs[i].State = state
			return
		}
	}
	s.Tabs = append(s.Tabs, Tab{Slot: slot, State: state})
}

func (s *Session) Remove(slot string) bool {
	for i, t := range s.Tabs {
		if t.Slot == slot {
			s.Tabs = append(s.Tabs[:i], s.Tabs[i+1:]...)
			return true
		}
	}
	return false
}

// Slots returns the slot keys sorted by name.
func (s *Session) Slots() []string {
	slots := make([]string, 0, len(s.Tabs))
	for _, t := range s.Tabs {
		slots = append(slots, t.Slot)
	}
	sort.Strings(slots)
	return slots
}

type SessionOption func(*SessionStore)

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		s.logger = logger
	}
}

// SessionStore persists a Session as a YAML file.
type SessionStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewSessionStore(path string, opts ...SessionOption) *SessionStore {
	s := &SessionStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

func (s *SessionStore) Path() string { return s.path }

// Load reads the session. A missing file is an empty session.
func (s *SessionStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SessionStore) load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	session := &Session{}
	if err := yaml.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return session, nil
}

// Save writes the session atomically: a temp file in the same directory is
// renamed over the target.
func (s *SessionStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(session)
}

func (s *SessionStore) save(session *Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.logger.Debug("session saved", slog.String("path", s.path), slog.Int("tabs", len(session.Tabs)))
	return nil
}

// Update loads, applies fn and saves under one lock.
func (s *SessionStore) Update(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(session); err != nil {
		return err
	}
	return s.save(session)
}

// Watch calls fn with the reloaded session whenever the file changes on
// disk, until ctx ends. The directory is watched so rename-based saves by
// other editors are seen.
func (s *SessionStore) Watch(ctx context.Context, fn func(*Session, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				if ctx.Err() != nil {
					return
				}
				s.logger.Info("session file changed", slog.String("path", s.path))
				fn(s.Load())
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("session watcher error", slog.String("error", err.Error()))
			fn(nil, fmt.Errorf("watcher error: %w", err))
		}
	}
}
