// Package plan computes the edit actions that bring both sides of every
// link into agreement. Planning never touches the filesystem directly.
package plan

import (
	"log/slog"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/orphan"
	"github.com/TestFlowLabs/testlink-sub002/internal/registry"
)

// Finder locates code units and tests the registry has no site for, such as
// classes living outside the scanned directories.
type Finder interface {
	FindUnit(unit model.CodeUnitRef) (string, error)
	FindTest(test model.TestRef) (string, model.Style, error)
}

// Options tune what the planner emits.
type Options struct {
	// LinkOnly adds test-side links that do not count toward coverage.
	LinkOnly bool
	// Doc also adds @see cross-references on both sides of each link.
	Doc bool
	// Prune removes orphaned declarations.
	Prune bool
}

// Planner turns registry state into edit actions.
type Planner struct {
	reg    *registry.Registry
	finder Finder
	opts   Options
	logger *slog.Logger

	actions []model.EditAction
	seen    map[string]struct{}
	errs    errors.Collector
}

// New creates a Planner. finder may be nil, in which case only registry sites
// are used.
func New(reg *registry.Registry, finder Finder, opts Options, logger *slog.Logger) *Planner {
	return &Planner{
		reg:    reg,
		finder: finder,
		opts:   opts,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Plan returns the actions in declaration discovery order together with the
// recoverable errors met while locating target files.
func (p *Planner) Plan() ([]model.EditAction, []error) {
	orphaned := make(map[string]struct{})
	var orphans []model.Declaration
	if p.opts.Prune {
		orphans = orphan.FindOrphans(p.reg.Declarations(), p.reg.ValidUnits(), p.reg.ValidTests())
		for _, d := range orphans {
			orphaned[d.Key()] = struct{}{}
		}
	}

	for _, d := range p.reg.Declarations() {
		if d.Kind != model.KindLink {
			continue
		}
		if _, skip := orphaned[d.Key()]; skip {
			continue
		}
		switch d.Side {
		case model.ProductionSide:
			if _, ok := p.reg.DeclaredByTest(d.Unit, d.Test); ok {
				continue
			}
			file, _, err := p.testFile(d.Test)
			if err != nil {
				p.fail(err, d)
				continue
			}
			p.add(model.EditAction{
				Kind:   model.AddTestSideLink,
				File:   file,
				Unit:   d.Unit,
				Test:   d.Test,
				Covers: !p.opts.LinkOnly,
				Side:   model.TestSide,
			})
		case model.TestSide:
			if _, ok := p.reg.DeclaredByProduction(d.Unit, d.Test); ok {
				continue
			}
			file, err := p.unitFile(d.Unit)
			if err != nil {
				p.fail(err, d)
				continue
			}
			p.add(model.EditAction{
				Kind: model.AddProductionSideDeclaration,
				File: file,
				Unit: d.Unit,
				Test: d.Test,
				Side: model.ProductionSide,
			})
		}
	}

	if p.opts.Doc {
		p.planDocs(orphaned)
	}

	for i := range orphans {
		d := orphans[i]
		p.add(model.EditAction{Kind: model.RemoveDeclaration, File: d.File, Side: d.Side, Decl: &d})
	}

	return p.actions, p.errs.Errors()
}

// planDocs adds an @see on each side of every link that lacks one.
func (p *Planner) planDocs(orphaned map[string]struct{}) {
	for _, d := range p.reg.Declarations() {
		if d.Kind != model.KindLink {
			continue
		}
		if _, skip := orphaned[d.Key()]; skip {
			continue
		}
		if !p.reg.HasDocRef(model.ProductionSide, d.Unit.String(), d.Test.Key()) {
			if file, err := p.unitFile(d.Unit); err == nil {
				p.add(model.EditAction{Kind: model.AddDocCrossReference, File: file, Unit: d.Unit, Test: d.Test, Side: model.ProductionSide})
			}
		}
		if !p.reg.HasDocRef(model.TestSide, d.Test.Key(), d.Unit.String()) {
			file, style, err := p.testFile(d.Test)
			// Chain-style tests have no doc blocks to carry a reference.
			if err == nil && style == model.StyleAttribute {
				p.add(model.EditAction{Kind: model.AddDocCrossReference, File: file, Unit: d.Unit, Test: d.Test, Side: model.TestSide})
			}
		}
	}
}

func (p *Planner) add(a model.EditAction) {
	key := a.Key()
	if _, dup := p.seen[key]; dup {
		return
	}
	p.seen[key] = struct{}{}
	p.logger.Debug("planned", "action", a.String())
	p.actions = append(p.actions, a)
}

func (p *Planner) fail(err error, d model.Declaration) {
	if le, ok := errors.AsLinkError(err); ok && le.File == "" {
		le.At(d.File, d.StartLine)
	}
	p.errs.Add(err)
}

func (p *Planner) unitFile(unit model.CodeUnitRef) (string, error) {
	if file, ok := p.reg.UnitFile(unit); ok {
		return file, nil
	}
	if !unit.ClassLevel() {
		if file, ok := p.reg.UnitFile(unit.ClassRef()); ok {
			return "", errors.Newf(errors.MemberNotFound, "%s has no member %s (%s)", unit.Class, unit.Member, file)
		}
	}
	if p.finder == nil {
		return "", errors.Newf(errors.LocatorNotFound, "no file found for %s", unit.Class)
	}
	return p.finder.FindUnit(unit)
}

func (p *Planner) testFile(test model.TestRef) (string, model.Style, error) {
	if file, ok := p.reg.TestFile(test); ok {
		style, _ := p.reg.TestStyle(test)
		return file, style, nil
	}
	if !test.ClassLevel() {
		if file, ok := p.reg.TestFile(model.TestRef{Class: test.Class}); ok {
			return "", "", errors.Newf(errors.CaseNotFound, "%s has no test %q (%s)", test.Class, test.Name(), file)
		}
	}
	if p.finder == nil {
		return "", "", errors.Newf(errors.LocatorNotFound, "no file found for %s", test.Class)
	}
	return p.finder.FindTest(test)
}
