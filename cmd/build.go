package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccb/internal/archive"
	"github.com/Norgate-AV/ccb/internal/builder"
	"github.com/Norgate-AV/ccb/internal/cache"
	"github.com/Norgate-AV/ccb/internal/codes"
	"github.com/Norgate-AV/ccb/internal/compiler"
	"github.com/Norgate-AV/ccb/internal/config"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [target...]",
		Short: "Build out of date archives",
		Long: `Build every configured target, or the named ones, whose archive is out of date.
With --output the arguments are source files of a single ad-hoc target.`,
		RunE:         runBuild,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
	}

	addBuildFlags(cmd)

	return cmd
}

func addBuildFlags(cmd *cobra.Command) {
	addTargetFlags(cmd)
	cmd.Flags().BoolP("force", "f", false, "Rebuild even when archives are up to date")
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Archive name of an ad-hoc target built from the arguments")
	cmd.Flags().StringArrayP("include", "I", []string{}, "Include directory of the ad-hoc target, in search order")
	cmd.Flags().Bool("cuda", false, "Compile the ad-hoc target with the CUDA compiler")
}

// newCompiler creates the compiler driver used by build
var newCompiler = func(logger *log.Logger) builder.Compiler {
	return compiler.NewCommandBuilder(logger)
}

func runBuild(cmd *cobra.Command, args []string) error {
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
		builder.WithCompiler(newCompiler(logger)),
	}

	if ledger != nil {
		defer ledger.Close()
		opts = append(opts, builder.WithLedger(ledger))
	}

	results, err := builder.New(cfg, opts...).Run(cmd.Context(), targets)
	if err != nil {
		return err
	}

	built, failed := 0, 0
	code := codes.Failure

	for _, res := range results {
		if res.Err != nil {
			failed++

			var cmdErr *compiler.CommandError
			if errors.As(res.Err, &cmdErr) {
				code = codes.CompileFailed
			}

			logger.Error("target failed", "target", res.Target, "err", res.Err)
			continue
		}

		if res.Built {
			built++
		}
	}

	logger.Info("done", "targets", len(results), "built", built, "failed", failed)

	if failed > 0 {
		return &ExitError{Code: code, Err: fmt.Errorf("%d of %d targets failed", failed, len(results))}
	}

	return nil
}

// selectTargets returns the ad-hoc target described by --output or the
// configured targets named in args. No args selects every configured target.
func selectTargets(cmd *cobra.Command, cfg *config.Config, args []string) ([]config.Target, error) {
	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		return adHocTarget(cmd, output, args)
	}

	if len(cfg.Targets) == 0 {
		return nil, errors.New("no targets configured, use --output to build sources directly")
	}

	if len(args) == 0 {
		return cfg.Targets, nil
	}

	targets := make([]config.Target, 0, len(args))
	for _, name := range args {
		t, ok := cfg.Target(name)
		if !ok {
			return nil, fmt.Errorf("unknown target: %s", name)
		}

		targets = append(targets, t)
	}

	return targets, nil
}

func adHocTarget(cmd *cobra.Command, output string, sources []string) ([]config.Target, error) {
	if err := archive.CheckName(output); err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("target %s has no sources", output)
	}

	includes, _ := cmd.Flags().GetStringArray("include")
	cuda, _ := cmd.Flags().GetBool("cuda")

	t := config.Target{
		Name: output,
		CUDA: cuda,
	}

	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}

		t.Sources = append(t.Sources, abs)
	}

	for _, dir := range includes {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}

		t.Includes = append(t.Includes, abs)
	}

	return []config.Target{t}, nil
}

func openLedger(cfg *config.Config) (*cache.Cache, error) {
	if cfg.NoCache {
		return nil, nil
	}

	ledger, err := cache.New(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open build ledger: %w", err)
	}

	return ledger, nil
}
