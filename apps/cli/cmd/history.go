package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/spf13/cobra"
)

var (
	historyLimitFlag int
	statsLimitFlag   int
	restoreSlotFlag  string
	clearYesFlag     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished requests, newest first",
	Long: `List finished requests, newest first.

Only completed and failed requests are recorded; cancelled ones are not.

Examples:
  relay history
  relay history -n 50
  relay history show 1f0c2a7e-...
  relay history stats
  relay history restore 1f0c2a7e-... --slot users
  relay history resend 1f0c2a7e-...`,
	Args: cobra.NoArgs,
	RunE: historyListCommand,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record and the request it sent",
	Args:  cobra.ExactArgs(1),
	RunE:  historyShowCommand,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise outcomes and latency across history",
	Args:  cobra.NoArgs,
	RunE:  historyStatsCommand,
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Reopen a recorded request in a session slot",
	Args:  cobra.ExactArgs(1),
	RunE:  historyRestoreCommand,
}

var historyResendCmd = &cobra.Command{
	Use:   "resend <id>",
	Short: "Send a recorded request again",
	Args:  cobra.ExactArgs(1),
	RunE:  historyResendCommand,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history record",
	Args:  cobra.NoArgs,
	RunE:  historyClearCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of records to show (0 for all)")
	historyStatsCmd.Flags().IntVarP(&statsLimitFlag, "limit", "n", 0, "Only the most recent N records (0 for all)")
	historyRestoreCmd.Flags().StringVar(&restoreSlotFlag, "slot", "", "Target slot (default: the slot it was sent from)")
	historyResendCmd.Flags().StringVar(&restoreSlotFlag, "slot", "", "Slot to send from (default: the slot it was sent from)")
	historyClearCmd.Flags().BoolVarP(&clearYesFlag, "yes", "y", false, "Confirm deletion")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyRestoreCmd)
	historyCmd.AddCommand(historyResendCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func historyListCommand(cmd *cobra.Command, args []string) error {
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

	records, err := a.History().Recent(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	f.FormatRecords(records)
	return nil
}

func historyShowCommand(cmd *cobra.Command, args []string) error {
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

	rec, err := lookupRecord(cmd, a.History(), args[0])
	if err != nil {
		return err
	}
	f.FormatRecord(rec)
	return nil
}

func historyStatsCommand(cmd *cobra.Command, args []string) error {
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

	records, err := a.History().Recent(cmd.Context(), statsLimitFlag)
	if err != nil {
		return err
	}
	f.FormatStats(history.ComputeStats(records))
	return nil
}

func historyRestoreCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := lookupRecord(cmd, a.History(), args[0])
	if err != nil {
		return err
	}

	slot := restoreSlotFlag
	if slot == "" {
		slot = rec.SlotKey
	}

	err = a.Sessions().Update(func(s *dashboard.Session) error {
		s.Set(slot, rec.DashboardState())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s %s into slot %q\n", rec.Request.Method, rec.Request.Target, slot)
	return nil
}

func historyResendCommand(cmd *cobra.Command, args []string) error {
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

	rec, err := lookupRecord(cmd, a.History(), args[0])
	if err != nil {
		return err
	}

	req, err := rec.DashboardState().Model()
	if err != nil {
		return &exitError{code: ExitInvalidRequest, err: err}
	}

	slot := restoreSlotFlag
	if slot == "" {
		slot = rec.SlotKey
	}
	return dispatch(cmd, a, f, slot, req, checks{})
}

func historyClearCommand(cmd *cobra.Command, args []string) error {
	if !clearYesFlag {
		return &exitError{code: ExitUsageError, err: errors.New("refusing to clear history without --yes")}
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

	if err := a.History().Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}

// lookupRecord accepts a full record ID or a unique prefix of one, as
// printed by the history list.
func lookupRecord(cmd *cobra.Command, store history.Store, id string) (*history.Record, error) {
	rec, err := store.Get(cmd.Context(), id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}

	records, err := store.Recent(cmd.Context(), 0)
	if err != nil {
		return nil, err
	}
	var match *history.Record
	for _, r := range records {
		if len(id) >= 4 && len(r.ID) >= len(id) && r.ID[:len(id)] == id {
			if match != nil {
				return nil, &exitError{code: ExitUsageError, err: fmt.Errorf("record prefix %q is ambiguous", id)}
			}
			match = r
		}
	}
	if match == nil {
		return nil, &exitError{code: ExitUsageError, err: fmt.Errorf("%w: %s", history.ErrNotFound, id)}
	}
	return match, nil
}
