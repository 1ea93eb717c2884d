// Package report builds the link report from a populated registry and renders
// it as plain text.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/registry"
)

// Build summarizes every linked code unit and test. Units and tests appear in
// the order their first link was discovered.
func Build(project string, reg *registry.Registry) *model.Report {
	r := &model.Report{Project: project}

	unitIdx := make(map[string]int)
	testIdx := make(map[string]int)
	pairs := make(map[string]struct{})

	for _, d := range reg.Declarations() {
		if d.Kind != model.KindLink {
			continue
		}
		pk := d.Unit.String() + "\x00" + d.Test.Key()
		if _, dup := pairs[pk]; dup {
			continue
		}
		pairs[pk] = struct{}{}

		_, byProd := reg.DeclaredByProduction(d.Unit, d.Test)
		testDecl, byTest := reg.DeclaredByTest(d.Unit, d.Test)
		link := model.TestLink{
			Test:   d.Test,
			Covers: byTest && testDecl.Covers,
			Synced: byProd && byTest,
		}

		ui, ok := unitIdx[d.Unit.String()]
		if !ok {
			ui = len(r.Units)
			unitIdx[d.Unit.String()] = ui
			file, _ := reg.UnitFile(d.Unit)
			r.Units = append(r.Units, model.UnitSummary{Unit: d.Unit, File: file})
		}
		r.Units[ui].Tests = append(r.Units[ui].Tests, link)

		ti, ok := testIdx[d.Test.Key()]
		if !ok {
			ti = len(r.Tests)
			testIdx[d.Test.Key()] = ti
			file, _ := reg.TestFile(d.Test)
			r.Tests = append(r.Tests, model.TestSummary{Test: d.Test, File: file})
		}
		r.Tests[ti].Units = append(r.Tests[ti].Units, d.Unit)

		r.LinkCount++
		if link.Synced {
			r.SyncedCount++
		}
	}

	r.Placeholders = append(r.Placeholders, reg.Placeholders()...)
	return r
}

// WriteText renders r for a terminal.
func WriteText(w io.Writer, r *model.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d link(s), %d synced\n", r.Project, r.LinkCount, r.SyncedCount)

	for _, u := range r.Units {
		fmt.Fprintf(&b, "\n%s", u.Unit)
		if u.File != "" {
			fmt.Fprintf(&b, "  (%s)", u.File)
		}
		b.WriteByte('\n')
		for _, t := range u.Tests {
			marks := ""
			if t.Covers {
				marks += " covers"
			}
			if !t.Synced {
				marks += " unsynced"
			}
			fmt.Fprintf(&b, "  - %s%s\n", t.Test.Key(), marks)
		}
	}

	if len(r.Placeholders) > 0 {
		fmt.Fprintf(&b, "\nplaceholders:\n")
		for _, p := range r.Placeholders {
			fmt.Fprintf(&b, "  %s  %s  %s\n", p.Placeholder.Token, p.Owner(), p.Location())
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
