package parse

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/lang"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

var (
	seeRe     = regexp.MustCompile(`(?m)@see[ \t]+([^\r\n]*?)[ \t]*(?:\*/)?$`)
	testTagRe = regexp.MustCompile(`@test\b`)
)

// AttributeScanner reads PHP attributes and doc blocks attached to class
// and method declarations.
type AttributeScanner struct {
	Names config.AttributesConfig
}

// Style implements Scanner.
func (s *AttributeScanner) Style() model.Style { return model.StyleAttribute }

// Scan implements Scanner.
func (s *AttributeScanner) Scan(f *File, root *sitter.Node, src []byte) {
	lang.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_declaration", "trait_declaration", "enum_declaration":
			s.scanClass(f, n, src)
			return false
		}
		return true
	})
}

func (s *AttributeScanner) scanClass(f *File, node *sitter.Node, src []byte) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = lang.FirstChildOfType(node, "name")
	}
	if nameNode == nil {
		return
	}
	class := lang.NodeText(nameNode, src)
	if f.Namespace != "" {
		class = f.Namespace + `\` + class
	}

	cm := s.member(f, node, src)
	if f.Side == model.TestSide {
		cm.IsTest = true
		cm.Test = model.TestRef{Class: class}
	} else {
		cm.Unit = model.CodeUnitRef{Class: class}
	}
	f.Members = append(f.Members, cm)
	s.collect(f, cm, node, src, class)

	body := node.ChildByFieldName("body")
	if body == nil {
		body = lang.FirstChildOfType(node, "declaration_list", "enum_declaration_list")
	}
	if body == nil {
		return
	}
	for _, method := range lang.ChildrenOfType(body, "method_declaration") {
		mn := method.ChildByFieldName("name")
		if mn == nil {
			mn = lang.FirstChildOfType(method, "name")
		}
		if mn == nil {
			continue
		}
		name := lang.NodeText(mn, src)
		m := s.member(f, method, src)
		if f.Side == model.TestSide {
			if !isTestMethod(name, m) {
				continue
			}
			m.IsTest = true
			m.Test = model.TestRef{Class: class, Case: name}
		} else {
			m.Unit = model.CodeUnitRef{Class: class, Member: name}
		}
		f.Members = append(f.Members, m)
		s.collect(f, m, method, src, class)
	}
}

// isTestMethod follows PHPUnit: a test prefix, the #[Test] attribute or @test.
func isTestMethod(name string, m *Member) bool {
	if strings.HasPrefix(name, "test") {
		return true
	}
	for _, g := range m.Groups {
		for _, n := range g.Names {
			if n == "Test" {
				return true
			}
		}
	}
	return m.Doc != nil && m.Doc.hasTestTag
}

// member records the positions of a declaration and its metadata.
func (s *AttributeScanner) member(f *File, node *sitter.Node, src []byte) *Member {
	m := &Member{}

	header := node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "attribute_list" && child.Type() != "comment" {
			header = child
			break
		}
	}
	m.HeaderStart = LineStart(src, int(header.StartByte()))
	m.Line = lang.StartLine(header)
	m.Indent = Indent(src, m.HeaderStart)
	m.BlockStart = m.HeaderStart

	for i, list := range lang.ChildrenOfType(node, "attribute_list") {
		if i == 0 {
			m.BlockStart = LineStart(src, int(list.StartByte()))
		}
		for _, group := range lang.ChildrenOfType(list, "attribute_group") {
			g := AttrGroup{
				LineStart: LineStart(src, int(group.StartByte())),
				NextLine:  NextLine(src, int(group.EndByte())),
			}
			for _, attr := range lang.ChildrenOfType(group, "attribute") {
				g.Names = append(g.Names, shortName(f.Resolve(attributeName(attr, src))))
			}
			m.Groups = append(m.Groups, g)
		}
	}

	m.Doc = findDoc(node, src)
	return m
}

// collect emits the link and @see declarations carried by a member.
func (s *AttributeScanner) collect(f *File, m *Member, node *sitter.Node, src []byte, class string) {
	for _, list := range lang.ChildrenOfType(node, "attribute_list") {
		for _, group := range lang.ChildrenOfType(list, "attribute_group") {
			attrs := lang.ChildrenOfType(group, "attribute")
			for _, attr := range attrs {
				short := shortName(f.Resolve(attributeName(attr, src)))
				span := listItemSpan(group, attr, attrs, src)
				d := model.Declaration{
					Kind:      model.KindLink,
					Style:     model.StyleAttribute,
					File:      f.Path,
					StartLine: lang.StartLine(attr),
					EndLine:   lang.EndLine(attr),
					Span:      span,
					Raw:       lang.NodeText(attr, src),
				}
				vals := s.arguments(f, attr, src, class)

				switch {
				case f.Side == model.ProductionSide && short == s.Names.TestedBy:
					d.Side = model.ProductionSide
					d.Unit = m.Unit
					if !testTarget(&d, vals) {
						continue
					}
				case f.Side == model.TestSide && m.IsTest && (short == s.Names.LinksAndCovers || short == s.Names.Links):
					d.Side = model.TestSide
					d.Test = m.Test
					d.Covers = short == s.Names.LinksAndCovers
					if !unitTarget(&d, vals) {
						continue
					}
				default:
					continue
				}
				f.Declarations = append(f.Declarations, d)
			}
		}
	}

	if m.Doc == nil {
		return
	}
	for _, ref := range m.Doc.refs {
		d := model.Declaration{
			Kind:      model.KindDoc,
			Style:     model.StyleAttribute,
			File:      f.Path,
			StartLine: LineOf(src, ref.span.Start),
			EndLine:   LineOf(src, ref.span.End),
			Span:      ref.span,
			Raw:       string(src[ref.span.Start:ref.span.End]),
		}
		if m.IsTest {
			d.Side = model.TestSide
			d.Test = m.Test
			d.Unit = model.ParseCodeUnitRef(ref.target)
		} else {
			d.Side = model.ProductionSide
			d.Unit = m.Unit
			d.Test = model.ParseTestRef(ref.target)
		}
		f.Declarations = append(f.Declarations, d)
	}
}

// arguments evaluates attribute arguments; unresolvable values end the list.
func (s *AttributeScanner) arguments(f *File, attr *sitter.Node, src []byte, class string) []string {
	var vals []string
	for _, arg := range lang.CallArguments(attr) {
		v, ok := f.evalString(arg, src, class)
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	return vals
}

func testTarget(d *model.Declaration, vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	if ph, ok := model.ParsePlaceholder(vals[0]); ok {
		d.Placeholder = &ph
		return true
	}
	if len(vals) >= 2 {
		d.Test = model.NewTestRef(vals[0], vals[1])
	} else {
		d.Test = model.ParseTestRef(vals[0])
	}
	return d.Test.Class != ""
}

func unitTarget(d *model.Declaration, vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	if ph, ok := model.ParsePlaceholder(vals[0]); ok {
		d.Placeholder = &ph
		return true
	}
	if len(vals) >= 2 {
		d.Unit = model.CodeUnitRef{Class: strings.TrimPrefix(vals[0], `\`), Member: vals[1]}
	} else {
		d.Unit = model.ParseCodeUnitRef(vals[0])
	}
	return d.Unit.Class != ""
}

func attributeName(attr *sitter.Node, src []byte) string {
	if n := lang.FirstChildOfType(attr, "name", "qualified_name"); n != nil {
		return lang.NodeText(n, src)
	}
	text := lang.NodeText(attr, src)
	if i := strings.Index(text, "("); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func shortName(fqn string) string {
	return fqn[strings.LastIndex(fqn, `\`)+1:]
}

// listItemSpan returns the range to delete when removing item from a
// comma-separated list. A sole item takes its whole container with it.
func listItemSpan(container, item *sitter.Node, items []*sitter.Node, src []byte) model.Span {
	if len(items) <= 1 {
		return model.Span{Start: int(container.StartByte()), End: int(container.EndByte())}
	}
	start, end := int(item.StartByte()), int(item.EndByte())
	j := end
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if j < len(src) && src[j] == ',' {
		j++
		for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
			j++
		}
		return model.Span{Start: start, End: j}
	}
	i := start
	for i > 0 && strings.ContainsRune(" \t\r\n", rune(src[i-1])) {
		i--
	}
	if i > 0 && src[i-1] == ',' {
		return model.Span{Start: i - 1, End: end}
	}
	return model.Span{Start: start, End: end}
}

type seeRef struct {
	target string
	span   model.Span
}

// findDoc returns the /** */ block directly preceding node, if any.
func findDoc(node *sitter.Node, src []byte) *DocBlock {
	var comment *sitter.Node
	if prev := node.PrevNamedSibling(); prev != nil && prev.Type() == "comment" && lang.EndLine(prev) >= lang.StartLine(node)-1 {
		comment = prev
	}
	if inner := lang.FirstChildOfType(node, "comment"); inner != nil {
		comment = inner
	}
	if comment == nil {
		return nil
	}
	text := lang.NodeText(comment, src)
	if !strings.HasPrefix(text, "/**") {
		return nil
	}

	start := int(comment.StartByte())
	d := &DocBlock{
		Span:       model.Span{Start: start, End: int(comment.EndByte())},
		Line:       lang.StartLine(comment),
		EndLine:    lang.EndLine(comment),
		hasTestTag: testTagRe.MatchString(text),
	}
	for _, loc := range seeRe.FindAllStringSubmatchIndex(text, -1) {
		target := text[loc[2]:loc[3]]
		if target == "" {
			continue
		}
		d.Refs = append(d.Refs, NormalizeRef(target))
		d.refs = append(d.refs, seeRef{
			target: target,
			span:   model.Span{Start: start + loc[0], End: start + loc[3]},
		})
	}
	return d
}
