package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccb/internal/builder"
	"github.com/Norgate-AV/ccb/internal/codes"
	"github.com/Norgate-AV/ccb/internal/compiler"
	"github.com/Norgate-AV/ccb/internal/config"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [target...]",
		Short: "Report which archives are out of date",
		Long: `Evaluate targets without compiling anything. Exits with status 2 when at
least one archive needs to be rebuilt.`,
		RunE:         runCheck,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
	}

	addTargetFlags(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)

	targets, err := selectTargets(cmd, cfg, args)
	if err != nil {
		return err
	}

	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}

	opts := []builder.Option{
		builder.WithLogger(logger),
		builder.WithDryRun(true),
	}

	if ledger != nil {
		defer ledger.Close()
		opts = append(opts, builder.WithLedger(ledger))
	}

	results, err := builder.New(cfg, opts...).Run(cmd.Context(), targets)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	stale := printDecisions(out, results)

	if cfg.Verbose {
		printPlans(out, cfg, targets, results)
	}

	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
	}

	if stale > 0 {
		return &ExitError{Code: codes.RebuildRequired}
	}

	return nil
}

// printDecisions renders one row per target and returns how many need a rebuild
func printDecisions(w io.Writer, results []builder.Result) int {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Target", "Status", "Reason", "Path"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	stale := 0
	for _, res := range results {
		status := "up to date"

		switch {
		case res.Err != nil:
			status = "error"
		case res.Decision.Rebuild:
			status = "rebuild"
			stale++
		}

		path := res.Decision.Path
		if res.Err != nil {
			path = res.Err.Error()
		}

		table.Append([]string{res.Target, status, string(res.Decision.Reason), path})
	}

	table.SetFooter([]string{"", "", "Stale", fmt.Sprintf("%d/%d", stale, len(results))})
	table.Render()

	return stale
}

// printPlans shows the commands a build would run for each stale target
func printPlans(w io.Writer, cfg *config.Config, targets []config.Target, results []builder.Result) {
	for i, res := range results {
		if res.Err != nil || !res.Decision.Rebuild {
			continue
		}

		sources, err := builder.ExpandSources(targets[i].Sources)
		if err != nil {
			continue
		}

		plan, err := compiler.GetBuildCommands(cfg, targets[i], sources)
		if err != nil {
			continue
		}

		fmt.Fprintln(w)
		compiler.PrintBuildInfo(w, cfg, targets[i], plan)
	}
}
