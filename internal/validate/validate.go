// Package validate reports link consistency without touching any file.
package validate

import (
	"fmt"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/orphan"
	"github.com/TestFlowLabs/testlink-sub002/internal/registry"
)

// Severity classifies an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity Severity
	Code     errors.ErrorCode
	Message  string
	File     string
	Line     int
}

func (i Issue) String() string {
	loc := i.File
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", i.File, i.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", i.Severity, i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, i.Severity, i.Code, i.Message)
}

// Result collects the issues of one run.
type Result struct {
	Issues   []Issue
	Errors   int
	Warnings int
	Links    int
}

// Failed reports whether the run should exit non-zero. Strict mode fails on
// warnings too.
func (r *Result) Failed(strict bool) bool {
	return r.Errors > 0 || (strict && r.Warnings > 0)
}

func (r *Result) add(sev Severity, code errors.ErrorCode, file string, line int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
	})
	if sev == SeverityError {
		r.Errors++
	} else {
		r.Warnings++
	}
}

// Validate checks the registry. One-sided links and orphans are errors;
// unresolved placeholders and scan problems are warnings.
func Validate(reg *registry.Registry, scanErrs []error) *Result {
	res := &Result{}

	for _, err := range scanErrs {
		file, line := "", 0
		code := errors.CodeOf(err)
		if le, ok := errors.AsLinkError(err); ok {
			file, line = le.File, le.Line
		}
		if code == "" {
			code = errors.ParseFailure
		}
		res.add(SeverityWarning, code, file, line, "%v", err)
	}

	for _, d := range reg.Declarations() {
		if d.Kind != model.KindLink {
			continue
		}
		res.Links++
		switch d.Side {
		case model.ProductionSide:
			if _, ok := reg.DeclaredByTest(d.Unit, d.Test); !ok {
				res.add(SeverityError, errors.UnsyncedLink, d.File, d.StartLine,
					"%s declares %s but the test does not link back", d.Unit, d.Test.Key())
			}
		case model.TestSide:
			if _, ok := reg.DeclaredByProduction(d.Unit, d.Test); !ok {
				res.add(SeverityError, errors.UnsyncedLink, d.File, d.StartLine,
					"%s links %s but the code unit has no TestedBy", d.Test.Key(), d.Unit)
			}
		}
	}

	for _, d := range orphan.FindOrphans(reg.Declarations(), reg.ValidUnits(), reg.ValidTests()) {
		res.add(SeverityError, errors.OrphanDeclaration, d.File, d.StartLine,
			"%s references missing %s", d.Owner(), d.Target())
	}

	for _, d := range reg.Placeholders() {
		res.add(SeverityWarning, errors.UnresolvedPlaceholder, d.File, d.StartLine,
			"placeholder %s on %s is unresolved; run testlink pair", d.Placeholder.Token, d.Owner())
	}
	return res
}
