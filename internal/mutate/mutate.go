// Package mutate applies edit actions to PHP source text with positional
// patches. Untouched bytes are preserved exactly; the file is never
// reserialized from its syntax tree.
package mutate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/lang"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/parse"
)

// Target identifies the file being edited.
type Target struct {
	Path  string
	Side  model.Side
	Class string // class-like name for chain-style test files
}

// Result is the outcome of applying a batch of actions to one file.
type Result struct {
	Text []byte
	// Applied counts actions that changed the text.
	Applied int
	// Skipped counts actions whose effect was already present.
	Skipped int
	// Errors holds per-action failures; the other actions still apply.
	Errors []error
}

// Changed reports whether the text differs from the input.
func (r *Result) Changed() bool { return r.Applied > 0 }

// Mutator edits files. Not safe for concurrent use.
type Mutator struct {
	parser *parse.Parser
	names  config.AttributesConfig
	logger *slog.Logger
}

// New creates a Mutator emitting the configured attribute names.
func New(names config.AttributesConfig, logger *slog.Logger) *Mutator {
	return &Mutator{parser: parse.NewParser(names), names: names, logger: logger}
}

// batch accumulates the patches for one Apply call.
type batch struct {
	f       *parse.File
	src     []byte
	names   config.AttributesConfig
	patches []patch
	imports []string
	docAdds map[*parse.Member][]string
	docSeq  []*parse.Member
	removed map[int]bool
	res     *Result
}

// Apply re-indexes src and applies actions, all of which must target the same
// file. Adds whose link already exists in src are no-ops, so applying the same
// actions to the output yields the output unchanged.
func (m *Mutator) Apply(t Target, src []byte, actions []model.EditAction) (*Result, error) {
	f, err := m.parser.Parse(t.Path, src, t.Side, t.Class)
	if err != nil {
		return nil, err
	}

	b := &batch{
		f:       f,
		src:     src,
		names:   m.names,
		docAdds: make(map[*parse.Member][]string),
		removed: make(map[int]bool),
		res:     &Result{},
	}

	seen := make(map[string]struct{})
	for _, a := range actions {
		if _, dup := seen[a.Key()]; dup {
			continue
		}
		seen[a.Key()] = struct{}{}

		var applied bool
		var err error
		switch a.Kind {
		case model.AddTestSideLink:
			applied, err = b.addTestLink(a)
		case model.AddProductionSideDeclaration:
			applied, err = b.addProductionLink(a)
		case model.AddDocCrossReference:
			applied, err = b.addDocRef(a)
		case model.RemoveDeclaration:
			applied, err = b.remove(a)
		default:
			err = fmt.Errorf("unknown action kind %q", a.Kind)
		}
		switch {
		case err != nil:
			if le, ok := errors.AsLinkError(err); ok && le.File == "" {
				le.At(t.Path, 0)
			}
			b.res.Errors = append(b.res.Errors, err)
		case applied:
			b.res.Applied++
			m.logger.Debug("applied", "action", a.String())
		default:
			b.res.Skipped++
		}
	}

	b.flushDocs()
	b.flushImports()
	b.res.Text = applyPatches(src, b.patches)
	return b.res, nil
}

func (b *batch) insert(at int, text string) {
	b.patches = append(b.patches, patch{start: at, end: at, text: text, seq: len(b.patches)})
}

func (b *batch) delete(start, end int) {
	b.patches = append(b.patches, patch{start: start, end: end, seq: len(b.patches)})
}

// hasLink reports whether the file already holds the link on the given side.
func (b *batch) hasLink(side model.Side, unit model.CodeUnitRef, test model.TestRef, covers bool) bool {
	for _, d := range b.f.Declarations {
		if d.Kind != model.KindLink || d.Side != side || d.Placeholder != nil {
			continue
		}
		if d.Unit != unit || d.Test.Key() != test.Key() {
			continue
		}
		if side == model.ProductionSide || d.Covers || !covers {
			return true
		}
	}
	return false
}

func (b *batch) addTestLink(a model.EditAction) (bool, error) {
	if b.hasLink(model.TestSide, a.Unit, a.Test, a.Covers) {
		return false, nil
	}
	if b.f.Style == model.StyleChain {
		return b.addChainCall(a)
	}

	mem := b.f.FindTestMember(a.Test)
	if mem == nil {
		return false, errors.Newf(errors.CaseNotFound, "test %s not found", a.Test.Key())
	}
	short := b.names.Links
	if a.Covers {
		short = b.names.LinksAndCovers
	}
	args := b.classArg(a.Unit.Class)
	if !a.Unit.ClassLevel() {
		args += ", " + lang.QuotePHPString(a.Unit.Member)
	}
	b.addAttribute(mem, short, args)
	return true, nil
}

func (b *batch) addChainCall(a model.EditAction) (bool, error) {
	if a.Test.ClassLevel() {
		return false, errors.Newf(errors.CaseNotFound, "chain-style file %s has no class-level test to link", b.f.Path)
	}
	c := b.f.FindCase(a.Test)
	if c == nil {
		return false, errors.Newf(errors.CaseNotFound, "test %q not found", a.Test.Name())
	}

	verb := parse.VerbLinks
	if a.Covers {
		verb = parse.VerbLinksAndCovers
	}
	arg := b.f.ClassRef(a.Unit.Class) + "::class"
	if !a.Unit.ClassLevel() {
		arg += "." + lang.QuotePHPString("::"+a.Unit.Member)
	}
	call := fmt.Sprintf("->%s(%s)", verb, arg)
	if c.CallIndent != "" {
		call = "\n" + c.CallIndent + call
	}
	b.insert(c.ChainEnd, call)
	return true, nil
}

func (b *batch) addProductionLink(a model.EditAction) (bool, error) {
	if b.hasLink(model.ProductionSide, a.Unit, a.Test, false) {
		return false, nil
	}
	mem := b.f.FindUnit(a.Unit)
	if mem == nil {
		return false, errors.Newf(errors.MemberNotFound, "code unit %s not found", a.Unit)
	}
	args := lang.QuotePHPString(a.Test.Class)
	if !a.Test.ClassLevel() {
		args += ", " + lang.QuotePHPString(a.Test.Name())
	}
	b.addAttribute(mem, b.names.TestedBy, args)
	return true, nil
}

// classArg renders a class constant for an attribute argument.
func (b *batch) classArg(fqn string) string {
	return b.f.ClassRef(fqn) + "::class"
}

// addAttribute inserts "#[Name(args)]" on its own line, after the last
// attribute group of the same kind or directly above the declaration header.
func (b *batch) addAttribute(mem *parse.Member, short, args string) {
	name := b.attributeName(short)
	at := mem.HeaderStart
	for _, g := range mem.Groups {
		for _, n := range g.Names {
			if n == short && g.NextLine <= mem.HeaderStart {
				at = g.NextLine
			}
		}
	}
	b.insert(at, fmt.Sprintf("%s#[%s(%s)]\n", mem.Indent, name, args))
}

// attributeName returns how the attribute class is spelled in this file,
// scheduling an import when needed.
func (b *batch) attributeName(short string) string {
	fqn := b.names.FQN(short)
	if alias := b.f.AliasFor(fqn); alias != "" {
		return alias
	}
	if b.f.ImportConflicts(fqn) || b.names.Namespace == "" {
		return `\` + strings.TrimPrefix(fqn, `\`)
	}
	if b.f.Namespace != "" && strings.EqualFold(b.f.Namespace, strings.Trim(b.names.Namespace, `\`)) {
		return short
	}
	for _, imp := range b.imports {
		if imp == fqn {
			return short
		}
	}
	b.imports = append(b.imports, fqn)
	return short
}

func (b *batch) flushImports() {
	if len(b.imports) == 0 {
		return
	}
	lines := make([]string, len(b.imports))
	for i, fqn := range b.imports {
		lines[i] = "use " + fqn + ";"
	}
	prefix := "\n\n"
	if b.f.ImportAfterUse {
		prefix = "\n"
	}
	b.insert(b.f.ImportAnchor, prefix+strings.Join(lines, "\n"))
}

func (b *batch) addDocRef(a model.EditAction) (bool, error) {
	var mem *parse.Member
	var target string
	if a.Side == model.TestSide {
		if b.f.Style == model.StyleChain {
			return false, errors.Newf(errors.DocStyleUnsupported, "chain-style test %q cannot carry @see", a.Test.Name())
		}
		mem = b.f.FindTestMember(a.Test)
		if mem == nil {
			return false, errors.Newf(errors.CaseNotFound, "test %s not found", a.Test.Key())
		}
		target = `\` + a.Unit.String()
	} else {
		mem = b.f.FindUnit(a.Unit)
		if mem == nil {
			return false, errors.Newf(errors.MemberNotFound, "code unit %s not found", a.Unit)
		}
		target = `\` + a.Test.Key()
	}

	if mem.Doc.HasRef(target) {
		return false, nil
	}
	for _, pending := range b.docAdds[mem] {
		if parse.NormalizeRef(pending) == parse.NormalizeRef(target) {
			return false, nil
		}
	}
	if _, ok := b.docAdds[mem]; !ok {
		b.docSeq = append(b.docSeq, mem)
	}
	b.docAdds[mem] = append(b.docAdds[mem], target)
	return true, nil
}

// flushDocs appends @see lines to existing doc blocks, expands one-line
// blocks, and creates blocks where none exist.
func (b *batch) flushDocs() {
	for _, mem := range b.docSeq {
		targets := b.docAdds[mem]
		var lines strings.Builder
		for _, t := range targets {
			fmt.Fprintf(&lines, "%s * @see %s\n", mem.Indent, t)
		}

		doc := mem.Doc
		switch {
		case doc == nil:
			b.insert(mem.BlockStart, mem.Indent+"/**\n"+lines.String()+mem.Indent+" */\n")
		case doc.Line == doc.EndLine:
			text := string(b.src[doc.Span.Start:doc.Span.End])
			inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/"))
			var out strings.Builder
			out.WriteString("/**\n")
			if inner != "" {
				fmt.Fprintf(&out, "%s * %s\n", mem.Indent, inner)
			}
			out.WriteString(lines.String())
			out.WriteString(mem.Indent + " */")
			b.delete(doc.Span.Start, doc.Span.End)
			b.insert(doc.Span.Start, out.String())
		default:
			closing := parse.LineStart(b.src, doc.Span.End-2)
			if !parse.Blank(b.src, closing, doc.Span.End-2) {
				// "text */" on the last line: break the terminator onto its own line.
				b.insert(doc.Span.End-2, "\n"+strings.TrimRight(lines.String(), "\n")+"\n"+mem.Indent+" ")
				continue
			}
			b.insert(closing, lines.String())
		}
	}
}

func (b *batch) remove(a model.EditAction) (bool, error) {
	if a.Decl == nil {
		return false, fmt.Errorf("remove action without declaration")
	}
	d := b.find(*a.Decl)
	if d == nil {
		return false, nil
	}
	if b.removed[d.Span.Start] {
		return false, nil
	}
	b.removed[d.Span.Start] = true

	switch {
	case d.Kind == model.KindDoc:
		b.removeDocLine(d)
	case d.Style == model.StyleChain:
		b.delete(d.Span.Start, d.Span.End)
	default:
		b.removeInline(d.Span.Start, d.Span.End)
	}
	return true, nil
}

// find locates the current occurrence of decl, preferring the same offset.
func (b *batch) find(decl model.Declaration) *model.Declaration {
	var match *model.Declaration
	for i := range b.f.Declarations {
		d := &b.f.Declarations[i]
		if d.Key() != decl.Key() {
			continue
		}
		if d.Span.Start == decl.Span.Start {
			return d
		}
		if match == nil {
			match = d
		}
	}
	return match
}

// removeInline deletes src[start:end], taking the whole line with it when
// nothing else remains there.
func (b *batch) removeInline(start, end int) {
	ls := parse.LineStart(b.src, start)
	le := parse.LineEnd(b.src, end)
	if parse.Blank(b.src, ls, start) && parse.Blank(b.src, end, le) {
		b.delete(ls, parse.NextLine(b.src, end))
		return
	}
	if parse.Blank(b.src, ls, start) {
		for end < le && (b.src[end] == ' ' || b.src[end] == '\t') {
			end++
		}
	}
	b.delete(start, end)
}

// removeDocLine drops the line carrying an @see. A block left without
// content is removed entirely.
func (b *batch) removeDocLine(d *model.Declaration) {
	var doc *parse.DocBlock
	for _, mem := range b.f.Members {
		if mem.Doc != nil && mem.Doc.Span.Start <= d.Span.Start && d.Span.End <= mem.Doc.Span.End {
			doc = mem.Doc
			break
		}
	}
	if doc == nil {
		b.removeInline(d.Span.Start, d.Span.End)
		return
	}

	rest := string(b.src[doc.Span.Start:d.Span.Start]) + string(b.src[d.Span.End:doc.Span.End])
	if strings.Trim(rest, "/* \t\r\n") == "" {
		b.removeInline(doc.Span.Start, doc.Span.End)
		return
	}
	ls := parse.LineStart(b.src, d.Span.Start)
	if doc.Span.Start >= ls || doc.Span.End <= parse.LineEnd(b.src, d.Span.End) {
		// The line also opens or closes the block.
		b.delete(d.Span.Start, d.Span.End)
		return
	}
	b.delete(ls, parse.NextLine(b.src, d.Span.Start))
}
