package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccb/internal/archive"
	"github.com/Norgate-AV/ccb/internal/codes"
	"github.com/Norgate-AV/ccb/internal/version"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccb",
		Short: "Incremental C and CUDA static library builder",
		Long: `Build static archives from C and CUDA sources, recompiling only when a
source file or an included header is newer than the existing archive.`,
		RunE:         runBuild,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
	}

	cmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	cmd.PersistentFlags().StringP("build-root", "r", "", "Directory searched for existing archives")
	cmd.PersistentFlags().String("compiler", "", "C compiler")
	cmd.PersistentFlags().String("archiver", "", "Static archiver")
	cmd.PersistentFlags().IntP("jobs", "j", 0, "Number of targets processed in parallel")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().Bool("no-cache", false, "Disable the build ledger")
	cmd.PersistentFlags().String("cache-dir", "", "Build ledger directory")
	addBuildFlags(cmd)

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newDepsCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return codes.GetErrorMessage(e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps an error returned by a command to a process exit code
func exitCode(err error) int {
	var exitErr *ExitError

	switch {
	case err == nil:
		return codes.Success
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, archive.ErrAmbiguous):
		return codes.AmbiguousArtifact
	default:
		return codes.Failure
	}
}

func newLogger(cmd *cobra.Command, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:  level,
		Prefix: "ccb",
	})
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if code := exitCode(err); !codes.IsSuccess(code) {
		stop()
		os.Exit(code)
	}
}
