package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/Norgate-AV/ccb/internal/config"
)

// Commander interface for testing
type Commander interface {
	Run() error
}

// CommandError reports a compiler or archiver invocation that did not succeed
type CommandError struct {
	Command  *ShellCommand
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s failed (exit code %d)", e.Command.Path, e.ExitCode)
	}

	return fmt.Sprintf("%s failed: %v", e.Command.Path, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandBuilder handles building and running compiler commands
type CommandBuilder struct {
	execCommand func(ctx context.Context, name string, args ...string) Commander
	stdout      io.Writer
	stderr      io.Writer
	logger      *log.Logger
}

// NewCommandBuilder creates a new command builder
func NewCommandBuilder(logger *log.Logger) *CommandBuilder {
	cb := &CommandBuilder{
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logger,
	}

	cb.execCommand = func(ctx context.Context, name string, args ...string) Commander {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdout = cb.stdout
		cmd.Stderr = cb.stderr
		return cmd
	}

	return cb
}

// Build runs every command of the plan, replacing any previous archive
func (cb *CommandBuilder) Build(ctx context.Context, plan *Plan) error {
	for _, dir := range []string{plan.ObjectDir, filepath.Dir(plan.Archive)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// ar appends to an existing archive instead of replacing its members
	if err := os.Remove(plan.Archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old archive: %w", err)
	}

	for _, c := range plan.Compile {
		if err := cb.ExecuteCommand(ctx, c); err != nil {
			return err
		}
	}

	return cb.ExecuteCommand(ctx, plan.Link)
}

// ExecuteCommand executes a single command
func (cb *CommandBuilder) ExecuteCommand(ctx context.Context, c *ShellCommand) error {
	cb.logger.Debug("exec", "cmd", c.String())

	err := cb.execCommand(ctx, c.Path, c.Args...).Run()
	if err == nil {
		return nil
	}

	code := -1

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &CommandError{Command: c, ExitCode: code, Err: err}
}

// PrintBuildInfo prints verbose build information
func PrintBuildInfo(w io.Writer, cfg *config.Config, target config.Target, plan *Plan) {
	compiler := cfg.Compiler
	if target.CUDA {
		compiler = cfg.CUDACompiler
	}

	fmt.Fprintf(w, "Target: %s\nCompiler: %s\nArchiver: %s\nIncludes: %v\nFlags: %v\nArchive: %s\n",
		target.Name, compiler, cfg.Archiver, target.Includes, target.Flags, plan.Archive)

	for _, c := range plan.Compile {
		fmt.Fprintf(w, "Command: %s\n", c)
	}

	fmt.Fprintf(w, "Command: %s\n", plan.Link)
}
