// Package parse extracts link declarations from PHP source files using tree-sitter.
package parse

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/lang"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

// Chain verbs recognized on Pest test constructors.
const (
	VerbLinksAndCovers = "linksAndCovers"
	VerbLinks          = "links"
)

// File is the scanned view of one source file: its link declarations plus
// the declaration sites the mutator needs to splice new metadata.
type File struct {
	Path      string
	Side      model.Side
	Style     model.Style
	Class     string // class-like name of a chain-style test file
	Namespace string
	// Imports maps lower-cased aliases to fully-qualified names.
	Imports  map[string]string
	spelling map[string]string

	// ImportAnchor is the offset where a new use statement is spliced.
	// ImportAfterUse is set when the anchor follows an existing use statement.
	ImportAnchor   int
	ImportAfterUse bool

	Members      []*Member
	Cases        []*Case
	Declarations []model.Declaration

	// HasErrors is set when the syntax tree contains error nodes.
	HasErrors bool
}

// Member is a class or method declaration site.
type Member struct {
	Unit   model.CodeUnitRef
	Test   model.TestRef
	IsTest bool

	Line        int // line of the declaration header
	HeaderStart int // offset of the header line
	BlockStart  int // offset of the first attribute line, or HeaderStart
	Indent      string
	Groups      []AttrGroup
	Doc         *DocBlock
}

// AttrGroup is one #[...] group attached to a member.
type AttrGroup struct {
	Names     []string // short attribute names
	LineStart int
	NextLine  int // offset just past the line the group ends on
}

// DocBlock is a /** */ comment directly preceding a member.
type DocBlock struct {
	Span    model.Span
	Line    int
	EndLine int
	Refs    []string // normalized @see targets

	refs       []seeRef
	hasTestTag bool
}

// HasRef reports whether the doc block already references target.
func (d *DocBlock) HasRef(target string) bool {
	if d == nil {
		return false
	}
	n := NormalizeRef(target)
	for _, r := range d.Refs {
		if r == n {
			return true
		}
	}
	return false
}

// Case is a chain-style test case.
type Case struct {
	Ref       model.TestRef
	StartLine int
	EndLine   int
	ChainEnd  int // offset just past the last chained call
	// CallIndent is the indentation of chained calls that start their own line;
	// empty when the chain is written inline.
	CallIndent string
}

// Owner returns the identity of a member for lookups.
func (m *Member) Owner() string {
	if m.IsTest {
		return m.Test.Key()
	}
	return m.Unit.String()
}

// FindUnit returns the member declaring ref, or nil.
func (f *File) FindUnit(ref model.CodeUnitRef) *Member {
	for _, m := range f.Members {
		if !m.IsTest && m.Unit == ref {
			return m
		}
	}
	return nil
}

// FindTestMember returns the attribute-style member declaring ref, or nil.
func (f *File) FindTestMember(ref model.TestRef) *Member {
	for _, m := range f.Members {
		if m.IsTest && m.Test.Key() == ref.Key() {
			return m
		}
	}
	return nil
}

// FindCase returns the chain-style case declaring ref, or nil.
func (f *File) FindCase(ref model.TestRef) *Case {
	for _, c := range f.Cases {
		if c.Ref.Key() == ref.Key() {
			return c
		}
	}
	return nil
}

// HasTest reports whether the file declares ref in either style.
func (f *File) HasTest(ref model.TestRef) bool {
	return f.FindCase(ref) != nil || f.FindTestMember(ref) != nil
}

// Resolve expands a PHP class name against the file's imports and namespace.
func (f *File) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, `\`) {
		return name[1:]
	}
	first, rest, hasRest := strings.Cut(name, `\`)
	if fqn, ok := f.Imports[strings.ToLower(first)]; ok {
		if hasRest {
			return fqn + `\` + rest
		}
		return fqn
	}
	if f.Namespace != "" {
		return f.Namespace + `\` + name
	}
	return name
}

// AliasFor returns the local name under which fqn is imported, or "".
func (f *File) AliasFor(fqn string) string {
	aliases := make([]string, 0, len(f.Imports))
	for alias := range f.Imports {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if strings.EqualFold(f.Imports[alias], fqn) {
			if spelled, ok := f.spelling[alias]; ok {
				return spelled
			}
			return alias
		}
	}
	return ""
}

// ImportConflicts reports whether the short name of fqn is taken by a
// different import.
func (f *File) ImportConflicts(fqn string) bool {
	short := fqn[strings.LastIndex(fqn, `\`)+1:]
	target, ok := f.Imports[strings.ToLower(short)]
	return ok && !strings.EqualFold(target, fqn)
}

// ClassRef renders fqn as a PHP class reference usable in this file.
func (f *File) ClassRef(fqn string) string {
	if alias := f.AliasFor(fqn); alias != "" {
		return alias
	}
	if f.Namespace != "" && strings.HasPrefix(fqn, f.Namespace+`\`) && !strings.Contains(fqn[len(f.Namespace)+1:], `\`) {
		return fqn[len(f.Namespace)+1:]
	}
	return `\` + fqn
}

// Scanner extracts declarations for one authoring style.
type Scanner interface {
	Style() model.Style
	Scan(f *File, root *sitter.Node, src []byte)
}

// Parser turns PHP source into a File. Not safe for concurrent use.
type Parser struct {
	parser    *sitter.Parser
	attribute *AttributeScanner
	chain     *ChainScanner
}

// NewParser creates a parser recognizing the configured attribute names.
func NewParser(names config.AttributesConfig) *Parser {
	return &Parser{
		parser:    lang.PHP().NewParser(),
		attribute: &AttributeScanner{Names: names},
		chain:     &ChainScanner{},
	}
}

// Parse scans src. class is the class-like name used for chain-style tests,
// normally derived from the file path.
func (p *Parser) Parse(path string, src []byte, side model.Side, class string) (*File, error) {
	f := &File{
		Path:     path,
		Side:     side,
		Class:    class,
		Imports:  make(map[string]string),
		spelling: make(map[string]string),
	}
	if len(src) == 0 {
		f.Style = model.StyleAttribute
		return f, nil
	}

	tree, err := p.parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, errors.Wrap(errors.ParseFailure, "tree-sitter parse failed", err).At(path, 0)
	}
	defer tree.Close()

	root := tree.RootNode()
	f.HasErrors = root.HasError()
	readHeader(f, root, src)

	var scanner Scanner = p.attribute
	if side == model.TestSide && hasChainTests(root, src) {
		scanner = p.chain
	}
	f.Style = scanner.Style()
	scanner.Scan(f, root, src)
	return f, nil
}

func hasChainTests(root *sitter.Node, src []byte) bool {
	found := false
	lang.Walk(root, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.Type() == "function_call_expression" {
			switch lang.CallName(n, src) {
			case "test", "it", "describe":
				found = true
				return false
			}
		}
		// Chain-style tests live at file scope, never inside class bodies.
		return n.Type() != "class_declaration"
	})
	return found
}

// readHeader records the namespace, imports and the anchor for new imports.
func readHeader(f *File, root *sitter.Node, src []byte) {
	if tag := lang.FirstChildOfType(root, "php_tag"); tag != nil {
		f.ImportAnchor = LineEnd(src, int(tag.EndByte()))
	}

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "namespace_definition":
				name := child.ChildByFieldName("name")
				if name == nil {
					name = lang.FirstChildOfType(child, "namespace_name")
				}
				if name != nil && f.Namespace == "" {
					f.Namespace = strings.TrimPrefix(lang.NodeText(name, src), `\`)
					if !f.ImportAfterUse {
						f.ImportAnchor = LineEnd(src, int(name.EndByte()))
					}
				}
				if body := child.ChildByFieldName("body"); body != nil {
					visit(body)
				}
			case "namespace_use_declaration":
				if readUse(f, lang.NodeText(child, src)) {
					f.ImportAnchor = LineEnd(src, int(child.EndByte())-1)
					f.ImportAfterUse = true
				}
			}
		}
	}
	visit(root)
}

// readUse parses "use A\B, C\D as E;" and group uses. Function and const
// imports are ignored. Returns whether any class import was recorded.
func readUse(f *File, text string) bool {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(strings.TrimPrefix(text, "use"), ";")
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "function ") || strings.HasPrefix(lower, "const ") {
		return false
	}

	var clauses []string
	if open := strings.Index(text, "{"); open >= 0 {
		prefix := strings.TrimSpace(text[:open])
		body := strings.TrimSuffix(strings.TrimSpace(text[open+1:]), "}")
		for _, part := range strings.Split(body, ",") {
			if part = strings.TrimSpace(part); part != "" {
				clauses = append(clauses, prefix+part)
			}
		}
	} else {
		clauses = strings.Split(text, ",")
	}

	added := false
	for _, clause := range clauses {
		clause = lang.CollapseWhitespace(clause)
		if clause == "" {
			continue
		}
		fqn, alias := clause, ""
		if i := strings.Index(strings.ToLower(clause), " as "); i >= 0 {
			fqn, alias = strings.TrimSpace(clause[:i]), strings.TrimSpace(clause[i+4:])
		}
		fqn = strings.TrimPrefix(fqn, `\`)
		if alias == "" {
			alias = fqn[strings.LastIndex(fqn, `\`)+1:]
		}
		f.Imports[strings.ToLower(alias)] = fqn
		f.spelling[strings.ToLower(alias)] = alias
		added = true
	}
	return added
}

// evalString statically evaluates string literals, Foo::class constants and
// '.' concatenations of both. self is the enclosing class for self::class.
func (f *File) evalString(n *sitter.Node, src []byte, self string) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "encapsed_string":
		return lang.UnquotePHPString(lang.NodeText(n, src))
	case "class_constant_access_expression":
		text := lang.CollapseWhitespace(lang.NodeText(n, src))
		scope, ok := strings.CutSuffix(text, "::class")
		if !ok {
			return "", false
		}
		scope = strings.TrimSpace(scope)
		if scope == "self" || scope == "static" {
			if self == "" {
				return "", false
			}
			return self, true
		}
		return f.Resolve(scope), true
	case "parenthesized_expression":
		if n.NamedChildCount() == 0 {
			return "", false
		}
		return f.evalString(n.NamedChild(0), src, self)
	case "binary_expression":
		if !isConcat(n, src) {
			return "", false
		}
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if left == nil || right == nil {
			if n.NamedChildCount() != 2 {
				return "", false
			}
			left, right = n.NamedChild(0), n.NamedChild(1)
		}
		l, ok := f.evalString(left, src, self)
		if !ok {
			return "", false
		}
		r, ok := f.evalString(right, src, self)
		if !ok {
			return "", false
		}
		return l + r, true
	}
	return "", false
}

func isConcat(n *sitter.Node, src []byte) bool {
	if op := n.ChildByFieldName("operator"); op != nil {
		return lang.NodeText(op, src) == "."
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() && lang.NodeText(child, src) == "." {
			return true
		}
	}
	return false
}
