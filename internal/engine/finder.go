package engine

import (
	"os"
	"path/filepath"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/parse"
)

// finder resolves references the scan did not cover, such as classes living
// outside the configured directories, through the locator.
type finder struct {
	e       *Engine
	project *Project
	parser  *parse.Parser
}

func (e *Engine) newFinder(p *Project) *finder {
	return &finder{e: e, project: p, parser: parse.NewParser(e.cfg.Attributes)}
}

func (f *finder) load(rel string, side model.Side) (*parse.File, error) {
	if pf, ok := f.project.parsed[rel]; ok {
		return pf, nil
	}
	src, err := os.ReadFile(filepath.Join(f.e.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, readError(rel, err)
	}
	pf, err := f.e.parseSource(f.parser, rel, src, side)
	if err != nil {
		return nil, err
	}
	f.project.parsed[rel] = pf
	return pf, nil
}

// FindUnit implements plan.Finder.
func (f *finder) FindUnit(unit model.CodeUnitRef) (string, error) {
	rel, err := f.e.locator.Resolve(unit.Class)
	if err != nil {
		return "", err
	}
	pf, err := f.load(rel, f.e.sideOf(rel, model.ProductionSide))
	if err != nil {
		return "", err
	}
	if pf.FindUnit(unit) == nil {
		if pf.FindUnit(unit.ClassRef()) == nil {
			return "", errors.Newf(errors.LocatorNotFound, "%s does not declare %s", rel, unit.Class)
		}
		return "", errors.Newf(errors.MemberNotFound, "%s has no member %s (%s)", unit.Class, unit.Member, rel)
	}
	return rel, nil
}

// FindTest implements plan.Finder.
func (f *finder) FindTest(test model.TestRef) (string, model.Style, error) {
	rel, err := f.e.locator.Resolve(test.Class)
	if err != nil {
		return "", "", err
	}
	pf, err := f.load(rel, model.TestSide)
	if err != nil {
		return "", "", err
	}
	if test.ClassLevel() {
		if pf.Style == model.StyleAttribute && pf.FindTestMember(test) == nil {
			return "", "", errors.Newf(errors.LocatorNotFound, "%s does not declare %s", rel, test.Class)
		}
		return rel, pf.Style, nil
	}
	if !pf.HasTest(test) {
		return "", "", errors.Newf(errors.CaseNotFound, "%s has no test %q (%s)", test.Class, test.Name(), rel)
	}
	return rel, pf.Style, nil
}
