// Package ranking narrows a link report to the units that matter most.
package ranking

import (
	"sort"
	"strings"

	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

// SelectUnits returns a new Report with only the maxUnits most-linked code
// units. Ties keep discovery order. If maxUnits is <= 0 or >= len(units), the
// original report is returned.
func SelectUnits(r *model.Report, maxUnits int) *model.Report {
	if maxUnits <= 0 || maxUnits >= len(r.Units) {
		return r
	}

	units := append([]model.UnitSummary(nil), r.Units...)
	sort.SliceStable(units, func(i, j int) bool {
		return len(units[i].Tests) > len(units[j].Tests)
	})
	return restrict(r, units[:maxUnits])
}

// FilterByUnit returns a new Report containing only code units whose name
// contains substr (case-insensitive), and the tests linked to them.
func FilterByUnit(r *model.Report, substr string) *model.Report {
	lower := strings.ToLower(substr)

	var units []model.UnitSummary
	for i := range r.Units {
		if strings.Contains(strings.ToLower(r.Units[i].Unit.String()), lower) {
			units = append(units, r.Units[i])
		}
	}
	return restrict(r, units)
}

// FilterByFile returns a new Report containing only the links touching files
// whose path contains substr (case-insensitive), on either side.
func FilterByFile(r *model.Report, substr string) *model.Report {
	lower := strings.ToLower(substr)
	matches := func(path string) bool {
		return path != "" && strings.Contains(strings.ToLower(path), lower)
	}

	matchedTests := make(map[string]struct{})
	for i := range r.Tests {
		if matches(r.Tests[i].File) {
			matchedTests[r.Tests[i].Test.Key()] = struct{}{}
		}
	}

	var units []model.UnitSummary
	for i := range r.Units {
		u := r.Units[i]
		if matches(u.File) {
			units = append(units, u)
			continue
		}
		var tests []model.TestLink
		for _, t := range u.Tests {
			if _, ok := matchedTests[t.Test.Key()]; ok {
				tests = append(tests, t)
			}
		}
		if len(tests) > 0 {
			u.Tests = tests
			units = append(units, u)
		}
	}
	return restrict(r, units)
}

// restrict rebuilds the test table, counts and placeholders for units.
func restrict(r *model.Report, units []model.UnitSummary) *model.Report {
	keep := make(map[string]struct{}, len(units))
	linked := make(map[string]struct{})
	out := &model.Report{Project: r.Project, Units: units}
	for i := range units {
		keep[units[i].Unit.String()] = struct{}{}
		for _, t := range units[i].Tests {
			linked[units[i].Unit.String()+"\x00"+t.Test.Key()] = struct{}{}
			out.LinkCount++
			if t.Synced {
				out.SyncedCount++
			}
		}
	}

	for i := range r.Tests {
		ts := r.Tests[i]
		var refs []model.CodeUnitRef
		for _, u := range ts.Units {
			if _, ok := linked[u.String()+"\x00"+ts.Test.Key()]; ok {
				refs = append(refs, u)
			}
		}
		if len(refs) > 0 {
			ts.Units = refs
			out.Tests = append(out.Tests, ts)
		}
	}

	for _, p := range r.Placeholders {
		if p.Side == model.TestSide {
			out.Placeholders = append(out.Placeholders, p)
			continue
		}
		if _, ok := keep[p.Unit.String()]; ok {
			out.Placeholders = append(out.Placeholders, p)
		}
	}
	return out
}
