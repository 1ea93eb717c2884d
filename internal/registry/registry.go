// Package registry holds the project-wide bidirectional index of link
// declarations. A Registry is built fresh for each run and passed explicitly
// through the pipeline.
package registry

import (
	"fmt"

	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/parse"
)

// Registry indexes declarations by code unit and by test.
// Not safe for concurrent use; callers register from a single goroutine.
type Registry struct {
	byUnit map[string][]model.TestRef
	byTest map[string][]model.CodeUnitRef
	linked map[string]struct{} // unit|test pairs present in either map

	seen         map[string]struct{}
	decls        []model.Declaration
	placeholders []model.Declaration

	production map[string]*model.Declaration // pair key -> production-side declaration
	tests      map[string]*model.Declaration // pair key -> test-side declaration
	docRefs    map[string]struct{}

	unitSites map[string]string
	unitOrder []model.CodeUnitRef
	testSites map[string]testSite
	testOrder []model.TestRef
}

type testSite struct {
	file  string
	style model.Style
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byUnit:     make(map[string][]model.TestRef),
		byTest:     make(map[string][]model.CodeUnitRef),
		linked:     make(map[string]struct{}),
		seen:       make(map[string]struct{}),
		production: make(map[string]*model.Declaration),
		tests:      make(map[string]*model.Declaration),
		docRefs:    make(map[string]struct{}),
		unitSites:  make(map[string]string),
		testSites:  make(map[string]testSite),
	}
}

func pairKey(unit model.CodeUnitRef, test model.TestRef) string {
	return unit.String() + "\x00" + test.Key()
}

func docKey(side model.Side, owner, target string) string {
	return fmt.Sprintf("%s|%s|%s", side, parse.NormalizeRef(owner), parse.NormalizeRef(target))
}

// RegisterDeclaration records d. Registering the same (owner, target, covers)
// twice is a no-op; the return value reports whether d was new.
func (r *Registry) RegisterDeclaration(d model.Declaration) bool {
	if d.Placeholder != nil {
		key := fmt.Sprintf("%s|%s|%d", d.Key(), d.File, d.Span.Start)
		if _, dup := r.seen[key]; dup {
			return false
		}
		r.seen[key] = struct{}{}
		r.placeholders = append(r.placeholders, d)
		return true
	}

	key := d.Key()
	if _, dup := r.seen[key]; dup {
		return false
	}
	r.seen[key] = struct{}{}
	r.decls = append(r.decls, d)
	stored := &d

	if d.Kind == model.KindDoc {
		r.docRefs[docKey(d.Side, d.Owner(), d.Target())] = struct{}{}
		return true
	}

	pk := pairKey(d.Unit, d.Test)
	if d.Side == model.ProductionSide {
		if _, ok := r.production[pk]; !ok {
			r.production[pk] = stored
		}
	} else if prev, ok := r.tests[pk]; !ok || (d.Covers && !prev.Covers) {
		r.tests[pk] = stored
	}

	if _, ok := r.linked[pk]; !ok {
		r.linked[pk] = struct{}{}
		r.byUnit[d.Unit.String()] = append(r.byUnit[d.Unit.String()], d.Test)
		r.byTest[d.Test.Key()] = append(r.byTest[d.Test.Key()], d.Unit)
	}
	return true
}

// LinksForCodeUnit returns the tests linked to unit from either side, in
// discovery order.
func (r *Registry) LinksForCodeUnit(unit model.CodeUnitRef) []model.TestRef {
	return r.byUnit[unit.String()]
}

// LinksForTest returns the code units linked to test from either side, in
// discovery order.
func (r *Registry) LinksForTest(test model.TestRef) []model.CodeUnitRef {
	return r.byTest[test.Key()]
}

// HasLink reports whether either side declares the pair.
func (r *Registry) HasLink(unit model.CodeUnitRef, test model.TestRef) bool {
	_, ok := r.linked[pairKey(unit, test)]
	return ok
}

// DeclaredByProduction returns the production-side declaration of the pair.
func (r *Registry) DeclaredByProduction(unit model.CodeUnitRef, test model.TestRef) (*model.Declaration, bool) {
	d, ok := r.production[pairKey(unit, test)]
	return d, ok
}

// DeclaredByTest returns the test-side declaration of the pair, preferring a
// coverage-counting one.
func (r *Registry) DeclaredByTest(unit model.CodeUnitRef, test model.TestRef) (*model.Declaration, bool) {
	d, ok := r.tests[pairKey(unit, test)]
	return d, ok
}

// HasDocRef reports whether owner on side already carries an @see to target.
// Comparison ignores case and a leading namespace separator.
func (r *Registry) HasDocRef(side model.Side, owner, target string) bool {
	_, ok := r.docRefs[docKey(side, owner, target)]
	return ok
}

// AddUnitSite records that unit is declared in file.
func (r *Registry) AddUnitSite(unit model.CodeUnitRef, file string) {
	key := unit.String()
	if _, ok := r.unitSites[key]; ok {
		return
	}
	r.unitSites[key] = file
	r.unitOrder = append(r.unitOrder, unit)
}

// AddTestSite records that test is declared in file using style.
func (r *Registry) AddTestSite(test model.TestRef, file string, style model.Style) {
	key := test.Key()
	if _, ok := r.testSites[key]; ok {
		return
	}
	r.testSites[key] = testSite{file: file, style: style}
	r.testOrder = append(r.testOrder, test)
}

// HasCodeUnit reports whether unit is declared somewhere in the project.
func (r *Registry) HasCodeUnit(unit model.CodeUnitRef) bool {
	_, ok := r.unitSites[unit.String()]
	return ok
}

// HasTest reports whether test is declared somewhere in the project.
func (r *Registry) HasTest(test model.TestRef) bool {
	_, ok := r.testSites[test.Key()]
	return ok
}

// UnitFile returns the file declaring unit.
func (r *Registry) UnitFile(unit model.CodeUnitRef) (string, bool) {
	f, ok := r.unitSites[unit.String()]
	return f, ok
}

// TestFile returns the file declaring test.
func (r *Registry) TestFile(test model.TestRef) (string, bool) {
	s, ok := r.testSites[test.Key()]
	return s.file, ok
}

// TestStyle returns the authoring style of the file declaring test.
func (r *Registry) TestStyle(test model.TestRef) (model.Style, bool) {
	s, ok := r.testSites[test.Key()]
	return s.style, ok
}

// Units returns every declared code unit in discovery order.
func (r *Registry) Units() []model.CodeUnitRef { return r.unitOrder }

// Tests returns every declared test in discovery order.
func (r *Registry) Tests() []model.TestRef { return r.testOrder }

// Declarations returns concrete declarations in discovery order.
func (r *Registry) Declarations() []model.Declaration { return r.decls }

// Placeholders returns placeholder occurrences in discovery order.
func (r *Registry) Placeholders() []model.Declaration { return r.placeholders }

// ValidUnits returns the set of declared code unit keys.
func (r *Registry) ValidUnits() map[string]struct{} {
	out := make(map[string]struct{}, len(r.unitSites))
	for k := range r.unitSites {
		out[k] = struct{}{}
	}
	return out
}

// ValidTests returns the set of declared test keys.
func (r *Registry) ValidTests() map[string]struct{} {
	out := make(map[string]struct{}, len(r.testSites))
	for k := range r.testSites {
		out[k] = struct{}{}
	}
	return out
}
