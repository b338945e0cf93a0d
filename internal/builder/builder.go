// Package builder drives staleness evaluation and compilation for a set of
// targets.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/ccb/internal/cache"
	"github.com/Norgate-AV/ccb/internal/compiler"
	"github.com/Norgate-AV/ccb/internal/config"
	"github.com/Norgate-AV/ccb/internal/stale"
)

// Reasons decided here rather than by the evaluator
const (
	ReasonForced          stale.Reason = "forced"
	ReasonConfigChanged   stale.Reason = "config-changed"
	ReasonPreviousFailure stale.Reason = "previous-failure"
)

// ErrNoSources is reported for targets whose patterns match nothing
var ErrNoSources = errors.New("no sources")

// Compiler produces the archive described by a plan
type Compiler interface {
	Build(ctx context.Context, plan *compiler.Plan) error
}

// Ledger remembers the last build of each target
type Ledger interface {
	Get(target string) (*cache.Entry, error)
	Store(entry *cache.Entry) error
}

// Result is the outcome for one target
type Result struct {
	Target   string
	Decision stale.Decision
	// Built is true when the compiler ran and succeeded
	Built bool
	// Archive is the archive path after the run
	Archive  string
	Duration time.Duration
	// Err is a per-target failure; it does not stop other targets
	Err error
}

// Builder evaluates and builds targets
type Builder struct {
	cfg      *config.Config
	eval     *stale.Evaluator
	compiler Compiler
	ledger   Ledger
	logger   *log.Logger
	runID    string
	dryRun   bool
}

// Option configures a Builder
type Option func(*Builder)

// WithCompiler replaces the compiler driver
func WithCompiler(c Compiler) Option {
	return func(b *Builder) {
		b.compiler = c
	}
}

// WithLedger records outcomes and consults previous ones
func WithLedger(l Ledger) Option {
	return func(b *Builder) {
		b.ledger = l
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithDryRun evaluates targets without compiling or recording anything
func WithDryRun(dryRun bool) Option {
	return func(b *Builder) {
		b.dryRun = dryRun
	}
}

// New creates a Builder for cfg
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		logger: log.Default(),
		runID:  uuid.NewString(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.compiler == nil {
		b.compiler = compiler.NewCommandBuilder(b.logger)
	}

	b.eval = stale.New(cfg.BuildRoot, stale.WithLogger(b.logger))

	return b
}

// RunID identifies this invocation in the ledger
func (b *Builder) RunID() string {
	return b.runID
}

// Run processes targets concurrently, at most cfg.Jobs at a time. Results are
// in target order. An ambiguous archive aborts the run and is returned as the
// error; other failures are reported per target.
func (b *Builder) Run(ctx context.Context, targets []config.Target) ([]Result, error) {
	results := make([]Result, len(targets))
	b.logger.Debug("run", "id", b.runID, "root", b.eval.Root(), "targets", len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Jobs)

	for i, t := range targets {
		g.Go(func() error {
			res, err := b.runTarget(ctx, t)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func (b *Builder) runTarget(ctx context.Context, t config.Target) (Result, error) {
	start := time.Now()
	res := Result{Target: t.Name}

	done := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		return res, err
	}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return done(nil)
	}

	sources, err := ExpandSources(t.Sources)
	if err != nil {
		res.Err = err
		return done(nil)
	}

	if len(sources) == 0 {
		res.Err = fmt.Errorf("target %s: %w", t.Name, ErrNoSources)
		return done(nil)
	}

	fingerprint := cache.Fingerprint(b.cfg, t, sources)

	decision, err := b.decide(t, sources, fingerprint)
	if err != nil {
		return done(fmt.Errorf("target %s: %w", t.Name, err))
	}

	res.Decision = decision
	res.Archive = decision.Archive

	b.logger.Info("evaluated", "target", t.Name, "rebuild", decision.Rebuild, "reason", decision.Reason)

	if b.dryRun {
		return done(nil)
	}

	if decision.Rebuild {
		res.Err = b.compile(ctx, t, sources, &res)
	}

	res.Duration = time.Since(start)
	b.record(t, fingerprint, res)

	return res, nil
}

// Decide evaluates a single target against its expanded sources
func (b *Builder) Decide(t config.Target, sources []string) (stale.Decision, error) {
	return b.decide(t, sources, cache.Fingerprint(b.cfg, t, sources))
}

func (b *Builder) decide(t config.Target, sources []string, fingerprint string) (stale.Decision, error) {
	decision, err := b.eval.Evaluate(sources, t.Includes, t.Name)
	if err != nil {
		return stale.Decision{}, err
	}

	if decision.Rebuild {
		return decision, nil
	}

	if b.cfg.Force {
		return b.override(decision, ReasonForced), nil
	}

	if b.ledger == nil {
		return decision, nil
	}

	prev, err := b.ledger.Get(t.Name)
	if err != nil {
		b.logger.Warn("ignoring ledger", "target", t.Name, "err", err)
		return decision, nil
	}

	switch {
	case prev == nil:
	case !prev.Success:
		return b.override(decision, ReasonPreviousFailure), nil
	case prev.Fingerprint != fingerprint:
		return b.override(decision, ReasonConfigChanged), nil
	}

	return decision, nil
}

func (b *Builder) override(d stale.Decision, reason stale.Reason) stale.Decision {
	d.Rebuild = true
	d.Reason = reason
	d.Path = ""
	return d
}

func (b *Builder) compile(ctx context.Context, t config.Target, sources []string, res *Result) error {
	plan, err := compiler.GetBuildCommands(b.cfg, t, sources)
	if err != nil {
		return err
	}

	b.logger.Debug("plan", "target", t.Name, "archive", plan.Archive, "commands", len(plan.Compile)+1)

	if err := b.compiler.Build(ctx, plan); err != nil {
		b.logger.Error("build failed", "target", t.Name, "err", err)
		return fmt.Errorf("target %s: %w", t.Name, err)
	}

	res.Built = true
	res.Archive = plan.Archive
	b.logger.Info("built", "target", t.Name, "archive", plan.Archive)

	return nil
}

func (b *Builder) record(t config.Target, fingerprint string, res Result) {
	if b.ledger == nil {
		return
	}

	entry := &cache.Entry{
		RunID:       b.runID,
		Target:      t.Name,
		Archive:     res.Archive,
		Fingerprint: fingerprint,
		Reason:      string(res.Decision.Reason),
		Rebuilt:     res.Decision.Rebuild,
		Success:     res.Err == nil,
		Duration:    res.Duration,
	}

	if err := b.ledger.Store(entry); err != nil {
		b.logger.Warn("failed to record build", "target", t.Name, "err", err)
	}
}
