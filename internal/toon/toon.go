// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// link reports.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a link Report into TOON format.
func Encode(r *model.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("project: %s", encodeValue(r.Project)))
	parts = append(parts, fmt.Sprintf("links: %d", r.LinkCount))
	parts = append(parts, fmt.Sprintf("synced: %d", r.SyncedCount))

	var unitRows, linkRows [][]any
	for i := range r.Units {
		u := &r.Units[i]
		unitRows = append(unitRows, []any{
			u.Unit.String(),
			u.File,
			len(u.Tests),
		})
		for _, t := range u.Tests {
			linkRows = append(linkRows, []any{
				u.Unit.String(),
				t.Test.Key(),
				t.Covers,
				t.Synced,
			})
		}
	}
	parts = append(parts, formatTabular("units", []string{"unit", "file", "tests"}, unitRows))
	parts = append(parts, formatTabular("links", []string{"unit", "test", "covers", "synced"}, linkRows))

	var testRows [][]any
	for i := range r.Tests {
		ts := &r.Tests[i]
		units := make([]string, len(ts.Units))
		for j, u := range ts.Units {
			units[j] = u.String()
		}
		testRows = append(testRows, []any{
			ts.Test.Key(),
			ts.File,
			strings.Join(units, " "),
		})
	}
	parts = append(parts, formatTabular("tests", []string{"test", "file", "units"}, testRows))

	if len(r.Placeholders) > 0 {
		var phRows [][]any
		for i := range r.Placeholders {
			p := &r.Placeholders[i]
			phRows = append(phRows, []any{
				p.Placeholder.Token,
				p.Side.String(),
				p.Owner(),
				p.File,
				p.StartLine,
			})
		}
		parts = append(parts, formatTabular("placeholders", []string{"token", "side", "owner", "file", "line"}, phRows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeCell(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

// encodeCell quotes strings as needed; numbers and booleans are bare.
func encodeCell(cell any) string {
	if s, ok := cell.(string); ok {
		return encodeValue(s)
	}
	return fmt.Sprint(cell)
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
