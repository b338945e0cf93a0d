package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccb/internal/cache"
	"github.com/Norgate-AV/ccb/internal/config"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target...]",
		Short: "Show the last recorded build of each target",
		Long: `Show the build ledger. With --clear the entries of the named targets,
or all entries when none are named, are removed.`,
		RunE:         runHistory,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
	}

	cmd.Flags().Bool("clear", false, "Remove ledger entries")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.NoCache {
		return errors.New("build ledger is disabled")
	}

	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	clearEntries, _ := cmd.Flags().GetBool("clear")
	if clearEntries {
		return clearHistory(cmd.OutOrStdout(), ledger, args)
	}

	entries, err := ledger.List()
	if err != nil {
		return fmt.Errorf("failed to read build ledger: %w", err)
	}

	if len(args) > 0 {
		entries = filterEntries(entries, args)
	}

	_, size, err := ledger.Stats()
	if err != nil {
		return fmt.Errorf("failed to read build ledger: %w", err)
	}

	printHistory(cmd.OutOrStdout(), entries, size)

	return nil
}

func clearHistory(w io.Writer, ledger *cache.Cache, targets []string) error {
	if len(targets) == 0 {
		if err := ledger.Clear(); err != nil {
			return err
		}

		fmt.Fprintf(w, "Cleared build ledger at %s\n", ledger.Root())
		return nil
	}

	for _, t := range targets {
		if err := ledger.Delete(t); err != nil {
			return fmt.Errorf("failed to remove %s: %w", t, err)
		}

		fmt.Fprintf(w, "Removed %s\n", t)
	}

	return nil
}

func filterEntries(entries []cache.Entry, targets []string) []cache.Entry {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}

	var filtered []cache.Entry
	for _, e := range entries {
		if _, ok := want[e.Target]; ok {
			filtered = append(filtered, e)
		}
	}

	return filtered
}

func printHistory(w io.Writer, entries []cache.Entry, size int64) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Target", "Result", "Reason", "Duration", "When", "Run"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, e := range entries {
		result := "up to date"

		switch {
		case !e.Success:
			result = "failed"
		case e.Rebuilt:
			result = "built"
		}

		table.Append([]string{
			e.Target,
			result,
			e.Reason,
			e.Duration.Round(time.Millisecond).String(),
			e.Timestamp.Format(time.DateTime),
			shortRunID(e.RunID),
		})
	}

	table.SetFooter([]string{"", "", "", "", "Archives", fmt.Sprintf("%d bytes", size)})
	table.Render()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
