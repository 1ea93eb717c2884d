package engine

import (
	"context"
	"path/filepath"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/pair"
	"github.com/TestFlowLabs/testlink-sub002/internal/plan"
	"github.com/TestFlowLabs/testlink-sub002/internal/report"
	"github.com/TestFlowLabs/testlink-sub002/internal/validate"
)

// SyncOptions controls Sync.
type SyncOptions struct {
	DryRun   bool
	LinkOnly bool
	Doc      bool
	Prune    bool
	// Force confirms destructive operations such as Prune.
	Force bool
}

// SyncResult describes what Sync planned and, unless dry-running, changed.
type SyncResult struct {
	Actions []model.EditAction
	Changes []FileChange
	// Errors holds recoverable failures from scanning, planning and applying.
	Errors []error
}

// Sync makes both sides of every link agree. Pruning without Force fails with
// UNSAFE_DESTRUCTIVE_OPERATION before the project is scanned.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if opts.Prune && !opts.Force {
		return nil, errors.New(errors.UnsafeDestructiveOperation, "--prune removes declarations; confirm with --force")
	}

	p, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}

	planner := plan.New(p.Registry, e.newFinder(p), plan.Options{
		LinkOnly: opts.LinkOnly,
		Doc:      opts.Doc,
		Prune:    opts.Prune,
	}, e.logger)
	actions, planErrs := planner.Plan()

	res := &SyncResult{Actions: actions}
	var errs errors.Collector
	errs.Merge(p.Errors)
	errs.Merge(planErrs)

	if !opts.DryRun {
		changes, applyErrs, err := e.apply(ctx, actions)
		res.Changes = changes
		errs.Merge(applyErrs)
		if err != nil {
			res.Errors = errs.Errors()
			return res, err
		}
	}
	res.Errors = errs.Errors()
	return res, nil
}

// PairOptions controls Pair.
type PairOptions struct {
	DryRun bool
	// Only restricts resolution to one placeholder token.
	Only string
}

// PairResult describes the placeholder resolution.
type PairResult struct {
	Tokens  []pair.Token
	Actions []model.EditAction
	Changes []FileChange
	// Errors holds ORPHAN_PLACEHOLDER reports and apply failures.
	Errors []error
}

// Unresolved counts tokens seen on one side only.
func (r *PairResult) Unresolved() int {
	n := 0
	for _, t := range r.Tokens {
		if !t.Resolved() {
			n++
		}
	}
	return n
}

// Pair resolves placeholder tokens into concrete links.
func (e *Engine) Pair(ctx context.Context, opts PairOptions) (*PairResult, error) {
	p, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := pair.Resolve(p.Registry.Placeholders(), opts.Only)
	if err != nil {
		return nil, err
	}
	res := &PairResult{Tokens: resolved.Tokens, Actions: resolved.Actions}
	var errs errors.Collector
	errs.Merge(resolved.Errors)

	if !opts.DryRun {
		changes, applyErrs, err := e.apply(ctx, resolved.Actions)
		res.Changes = changes
		errs.Merge(applyErrs)
		if err != nil {
			res.Errors = errs.Errors()
			return res, err
		}
	}
	res.Errors = errs.Errors()
	return res, nil
}

// Validate reports links declared on one side only, orphans and placeholders.
func (e *Engine) Validate(ctx context.Context) (*validate.Result, error) {
	p, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	return validate.Validate(p.Registry, p.Errors), nil
}

// Report builds the link report.
func (e *Engine) Report(ctx context.Context) (*model.Report, []error, error) {
	p, err := e.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return report.Build(filepath.Base(e.root), p.Registry), p.Errors, nil
}
