package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/abdul-hamid-achik/relay/packages/core/app"
	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/abdul-hamid-achik/relay/packages/output"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	sessionAllFlag   bool
	sessionWatchSend []string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "List the saved composer tabs",
	Long: `List the saved composer tabs.

A session file holds one composer state per slot. Tabs are written by
"relay send --save", "relay history restore" and "relay import", and can
be edited by hand.

Examples:
  relay session
  relay session show users
  relay session send users
  relay session send --all
  relay session watch --send users`,
	Args: cobra.NoArgs,
	RunE: sessionListCommand,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <slot>",
	Short: "Print a saved tab as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionShowCommand,
}

var sessionSendCmd = &cobra.Command{
	Use:   "send [slot]",
	Short: "Send a saved tab",
	Args:  cobra.MaximumNArgs(1),
	RunE:  sessionSendCommand,
}

var sessionRemoveCmd = &cobra.Command{
	Use:     "rm <slot>",
	Aliases: []string{"remove"},
	Short:   "Remove a saved tab",
	Args:    cobra.ExactArgs(1),
	RunE:    sessionRemoveCommand,
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the session when the file changes",
	Long: `Reload the session whenever the session file changes on disk.

With --send, the named slots are sent again after every change. A change
that lands while a slot's previous request is still in flight cancels
that request.`,
	Args: cobra.NoArgs,
	RunE: sessionWatchCommand,
}

func init() {
	sessionSendCmd.Flags().BoolVar(&sessionAllFlag, "all", false, "Send every saved tab concurrently")
	sessionWatchCmd.Flags().StringArrayVar(&sessionWatchSend, "send", nil, "Slot to send after each change (repeatable)")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSendCmd)
	sessionCmd.AddCommand(sessionRemoveCmd)
	sessionCmd.AddCommand(sessionWatchCmd)
}

func sessionListCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	session, err := a.Sessions().Load()
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	f.FormatSession(session)
	return nil
}

func sessionShowCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := savedState(a, args[0])
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func sessionSendCommand(cmd *cobra.Command, args []string) error {
	if sessionAllFlag == (len(args) == 1) {
		return &exitError{code: ExitUsageError, err: fmt.Errorf("give either a slot or --all")}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	if !sessionAllFlag {
		state, err := savedState(a, args[0])
		if err != nil {
			return err
		}
		req, err := composeFromState(a, state)
		if err != nil {
			return &exitError{code: ExitInvalidRequest, err: err}
		}
		return dispatch(cmd, a, f, args[0], req, checks{})
	}

	return sendAll(cmd, a, f)
}

// sendAll submits every tab at once; the pool's limits decide how many
// are actually on the wire. Tabs that cannot be composed are reported and
// skipped.
func sendAll(cmd *cobra.Command, a *app.App, f output.Formatter) error {
	session, err := a.Sessions().Load()
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := ExitSuccess
	outcomes := make([]manager.Outcome, len(session.Tabs))
	var wg sync.WaitGroup
	for i, tab := range session.Tabs {
		req, err := composeFromState(a, tab.State)
		if err != nil {
			f.FormatError(fmt.Errorf("slot %s: %w", tab.Slot, err))
			if code == ExitSuccess {
				code = ExitInvalidRequest
			}
			continue
		}
		wg.Add(1)
		_, err = a.Pool().Submit(tab.Slot, req, func(o manager.Outcome) {
			outcomes[i] = o
			wg.Done()
		})
		if err != nil {
			wg.Done()
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		for _, tab := range session.Tabs {
			a.Pool().Cancel(tab.Slot)
		}
		<-done
	}

	for _, o := range outcomes {
		if o.Request == nil {
			continue
		}
		f.FormatOutcome(o)
		if c := exitCodeFor(o); c != ExitSuccess && code == ExitSuccess {
			code = c
		}
	}
	if code != ExitSuccess {
		return &exitError{code: code}
	}
	return nil
}

func sessionRemoveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	removed := false
	err = a.Sessions().Update(func(s *dashboard.Session) error {
		removed = s.Remove(args[0])
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return &exitError{code: ExitUsageError, err: fmt.Errorf("no saved tab %q", args[0])}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed slot %q\n", args[0])
	return nil
}

func sessionWatchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observers and the watcher callback run on their own goroutines.
	var mu sync.Mutex
	locked := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s... (press Ctrl+C to stop)\n", a.Sessions().Path())

	return a.Sessions().Watch(ctx, func(session *dashboard.Session, err error) {
		if err != nil {
			locked(func() { f.FormatError(err) })
			return
		}
		locked(func() { f.FormatSession(session) })

		for _, slot := range sessionWatchSend {
			state, ok := session.Get(slot)
			if !ok {
				locked(func() { f.FormatError(fmt.Errorf("no saved tab %q", slot)) })
				continue
			}
			req, err := composeFromState(a, state)
			if err != nil {
				locked(func() { f.FormatError(fmt.Errorf("slot %s: %w", slot, err)) })
				continue
			}
			_, err = a.Pool().Submit(slot, req, func(o manager.Outcome) {
				locked(func() { f.FormatOutcome(o) })
			})
			if err != nil {
				locked(func() { f.FormatError(err) })
			}
		}
	})
}

func savedState(a *app.App, slot string) (dashboard.State, error) {
	session, err := a.Sessions().Load()
	if err != nil {
		return dashboard.State{}, &exitError{code: ExitConfigError, err: err}
	}
	state, ok := session.Get(slot)
	if !ok {
		return dashboard.State{}, &exitError{code: ExitUsageError, err: fmt.Errorf("no saved tab %q", slot)}
	}
	return state, nil
}

// composeFromState rebuilds a request the way the composer would show it:
// a missing or unknown content type becomes a blank plain body.
func composeFromState(a *app.App, state dashboard.State) (*request.Model, error) {
	method := request.MethodGet
	if state.Method != "" {
		m, err := request.ParseMethod(state.Method)
		if err != nil {
			return nil, err
		}
		method = m
	}
	sel, _ := dashboard.Restore(state, a.Logger())
	return sel.Build(method, state.Target, state.Headers)
}
