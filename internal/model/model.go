// Package model defines core data structures for testlink.
package model

import (
	"fmt"
	"strings"
)

// GroupSeparator joins nested suite names and the case name into a display name.
const GroupSeparator = " > "

// Side identifies which half of the project a file or declaration belongs to.
type Side int

const (
	ProductionSide Side = iota
	TestSide
)

func (s Side) String() string {
	if s == TestSide {
		return "test"
	}
	return "production"
}

// Style is the authoring style a file uses to declare links.
type Style string

const (
	// StyleAttribute covers PHP attributes on classes and methods.
	StyleAttribute Style = "attribute"
	// StyleChain covers fluent calls chained onto Pest test constructors.
	StyleChain Style = "chain"
)

// DeclKind indicates the syntactic kind of a declaration.
type DeclKind string

const (
	KindLink DeclKind = "link"
	KindDoc  DeclKind = "see"
)

// CodeUnitRef identifies a production class or method.
// An empty Member means a class-level reference.
type CodeUnitRef struct {
	Class  string
	Member string
}

// ParseCodeUnitRef parses "Vendor\Class::member" or "Vendor\Class".
func ParseCodeUnitRef(s string) CodeUnitRef {
	s = strings.TrimPrefix(strings.TrimSpace(s), `\`)
	class, member, _ := strings.Cut(s, "::")
	return CodeUnitRef{Class: class, Member: strings.TrimSuffix(member, "()")}
}

func (r CodeUnitRef) String() string {
	if r.Member == "" {
		return r.Class
	}
	return r.Class + "::" + r.Member
}

// ClassLevel reports whether r refers to a whole class.
func (r CodeUnitRef) ClassLevel() bool { return r.Member == "" }

// ClassRef returns the class-level reference containing r.
func (r CodeUnitRef) ClassRef() CodeUnitRef { return CodeUnitRef{Class: r.Class} }

// IsZero reports whether r is empty.
func (r CodeUnitRef) IsZero() bool { return r.Class == "" }

// TestRef identifies a test case. Groups holds enclosing suite names, outermost first.
type TestRef struct {
	Class  string
	Case   string
	Groups []string
}

// NewTestRef builds a TestRef from a class name and a display name, splitting
// nested suite segments on GroupSeparator.
func NewTestRef(class, display string) TestRef {
	class = strings.TrimPrefix(strings.TrimSpace(class), `\`)
	if display == "" {
		return TestRef{Class: class}
	}
	parts := strings.Split(display, GroupSeparator)
	ref := TestRef{Class: class, Case: parts[len(parts)-1]}
	if len(parts) > 1 {
		ref.Groups = parts[:len(parts)-1]
	}
	return ref
}

// ParseTestRef parses "Vendor\ClassTest::display name".
func ParseTestRef(s string) TestRef {
	class, display, _ := strings.Cut(strings.TrimSpace(s), "::")
	return NewTestRef(class, display)
}

// Name returns the full display name: suite names followed by the case name.
func (t TestRef) Name() string {
	if len(t.Groups) == 0 {
		return t.Case
	}
	return strings.Join(t.Groups, GroupSeparator) + GroupSeparator + t.Case
}

// Key returns a comparable identity for t.
func (t TestRef) Key() string {
	if t.Case == "" {
		return t.Class
	}
	return t.Class + "::" + t.Name()
}

func (t TestRef) String() string { return t.Key() }

// ClassLevel reports whether t refers to a whole test class or file.
func (t TestRef) ClassLevel() bool { return t.Case == "" }

// Placeholder is a deferred marker such as "@checkout" or "@@checkout".
type Placeholder struct {
	Token string
	// Doc is set for the "@@" form, which resolves into @see references.
	Doc bool
}

// ParsePlaceholder reports whether s is a placeholder token:
// "@" or "@@" followed by a letter and any run of letters, digits, '-' or '_'.
func ParsePlaceholder(s string) (Placeholder, bool) {
	if !strings.HasPrefix(s, "@") {
		return Placeholder{}, false
	}
	name := strings.TrimPrefix(s, "@")
	doc := strings.HasPrefix(name, "@")
	name = strings.TrimPrefix(name, "@")
	if name == "" || !isLetter(name[0]) {
		return Placeholder{}, false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isLetter(c) && !(c >= '0' && c <= '9') && c != '-' && c != '_' {
			return Placeholder{}, false
		}
	}
	return Placeholder{Token: s, Doc: doc}, true
}

// Name returns the token without its '@' prefix.
func (p Placeholder) Name() string {
	return strings.TrimLeft(p.Token, "@")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Span is a half-open byte range in a source file.
type Span struct {
	Start int
	End   int
}

// Declaration is one link assertion found in source.
// Side is the owner's side: production declarations are owned by Unit and
// target Test, test declarations are owned by Test and target Unit.
type Declaration struct {
	Side        Side
	Kind        DeclKind
	Style       Style
	Unit        CodeUnitRef
	Test        TestRef
	Covers      bool
	Placeholder *Placeholder
	File        string
	StartLine   int
	EndLine     int
	Span        Span
	Raw         string
}

// Owner returns the identity of the declaring side.
func (d Declaration) Owner() string {
	if d.Side == TestSide {
		return d.Test.Key()
	}
	return d.Unit.String()
}

// Target returns the identity of the referenced side.
func (d Declaration) Target() string {
	if d.Placeholder != nil {
		return d.Placeholder.Token
	}
	if d.Side == TestSide {
		return d.Unit.String()
	}
	return d.Test.Key()
}

// Key identifies a declaration by (owner, target, covers) plus its side and kind.
func (d Declaration) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%t", d.Side, d.Kind, d.Owner(), d.Target(), d.Covers)
}

// Location formats file:line for messages.
func (d Declaration) Location() string {
	return fmt.Sprintf("%s:%d", d.File, d.StartLine)
}

// ActionKind enumerates the edit actions the planner can emit.
type ActionKind string

const (
	AddTestSideLink              ActionKind = "add-test-link"
	AddProductionSideDeclaration ActionKind = "add-production-link"
	AddDocCrossReference         ActionKind = "add-see"
	RemoveDeclaration            ActionKind = "remove"
)

// EditAction is one planned change to one file. Actions are pure data.
// For AddDocCrossReference, Side names the owner of the doc block.
type EditAction struct {
	Kind   ActionKind
	File   string
	Unit   CodeUnitRef
	Test   TestRef
	Covers bool
	Side   Side
	Decl   *Declaration
}

// Key identifies an action for deduplication.
func (a EditAction) Key() string {
	if a.Kind == RemoveDeclaration && a.Decl != nil {
		return fmt.Sprintf("%s|%s|%s|%d", a.Kind, a.File, a.Decl.Key(), a.Decl.Span.Start)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%t|%s", a.Kind, a.File, a.Unit, a.Test.Key(), a.Covers, a.Side)
}

func (a EditAction) String() string {
	switch a.Kind {
	case AddTestSideLink:
		verb := "links"
		if a.Covers {
			verb = "linksAndCovers"
		}
		return fmt.Sprintf("%s: add %s(%s) to %s", a.File, verb, a.Unit, a.Test.Key())
	case AddProductionSideDeclaration:
		return fmt.Sprintf("%s: add TestedBy(%s) to %s", a.File, a.Test.Key(), a.Unit)
	case AddDocCrossReference:
		if a.Side == TestSide {
			return fmt.Sprintf("%s: add @see %s to %s", a.File, a.Unit, a.Test.Key())
		}
		return fmt.Sprintf("%s: add @see %s to %s", a.File, a.Test.Key(), a.Unit)
	case RemoveDeclaration:
		if a.Decl == nil {
			return fmt.Sprintf("%s: remove declaration", a.File)
		}
		return fmt.Sprintf("%s:%d: remove %s", a.File, a.Decl.StartLine, strings.TrimSpace(a.Decl.Raw))
	}
	return string(a.Kind)
}

// UnitSummary lists the tests linked to one code unit.
type UnitSummary struct {
	Unit  CodeUnitRef
	File  string
	Tests []TestLink
}

// TestLink is one test as seen from a code unit.
type TestLink struct {
	Test   TestRef
	Covers bool
	Synced bool
}

// TestSummary lists the code units linked from one test.
type TestSummary struct {
	Test  TestRef
	File  string
	Units []CodeUnitRef
}

// Report is the complete link report, ready for serialization.
type Report struct {
	Project      string
	Units        []UnitSummary
	Tests        []TestSummary
	Placeholders []Declaration
	LinkCount    int
	SyncedCount  int
}
