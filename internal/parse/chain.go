package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/TestFlowLabs/testlink-sub002/internal/lang"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

// ChainScanner reads Pest test constructors and the link verbs chained
// onto them.
type ChainScanner struct{}

// Style implements Scanner.
func (s *ChainScanner) Style() model.Style { return model.StyleChain }

// Scan implements Scanner.
func (s *ChainScanner) Scan(f *File, root *sitter.Node, src []byte) {
	lang.Walk(root, func(n *sitter.Node) bool {
		if n.Type() == "class_declaration" {
			return false
		}
		if n.Type() == "function_call_expression" {
			switch name := lang.CallName(n, src); name {
			case "test", "it":
				s.scanCase(f, n, name, src)
			}
		}
		return true
	})
}

func (s *ChainScanner) scanCase(f *File, call *sitter.Node, ctor string, src []byte) {
	args := lang.CallArguments(call)
	if len(args) == 0 {
		return
	}
	desc, ok := f.evalString(args[0], src, "")
	if !ok {
		return
	}
	if ctor == "it" {
		desc = "it " + desc
	}

	c := &Case{
		Ref:       model.TestRef{Class: f.Class, Case: desc, Groups: describeGroups(f, call, src)},
		StartLine: lang.StartLine(call),
	}

	cur := call
	for {
		parent := cur.Parent()
		if parent == nil {
			break
		}
		if t := parent.Type(); t != "member_call_expression" && t != "nullsafe_member_call_expression" {
			break
		}
		obj := parent.ChildByFieldName("object")
		if obj == nil {
			obj = parent.NamedChild(0)
		}
		if !lang.SameNode(obj, cur) {
			break
		}
		s.scanCall(f, c, cur, parent, src)
		cur = parent
	}
	c.EndLine = lang.EndLine(cur)
	c.ChainEnd = int(cur.EndByte())
	f.Cases = append(f.Cases, c)
}

// scanCall records one chained call and emits declarations for link verbs.
func (s *ChainScanner) scanCall(f *File, c *Case, obj, call *sitter.Node, src []byte) {
	objEnd, callEnd := int(obj.EndByte()), int(call.EndByte())
	arrow := objEnd
	if i := strings.Index(string(src[objEnd:callEnd]), "->"); i >= 0 {
		arrow = objEnd + i
		if arrow > objEnd && src[arrow-1] == '?' {
			arrow--
		}
	}
	ls := LineStart(src, arrow)
	if ls > objEnd && Blank(src, ls, arrow) {
		c.CallIndent = string(src[ls:arrow])
	} else {
		c.CallIndent = ""
	}

	verb := lang.CallName(call, src)
	if verb != VerbLinksAndCovers && verb != VerbLinks {
		return
	}

	args := lang.CallArguments(call)
	for _, arg := range args {
		v, ok := f.evalString(arg, src, "")
		if !ok {
			continue
		}
		d := model.Declaration{
			Side:      model.TestSide,
			Kind:      model.KindLink,
			Style:     model.StyleChain,
			Test:      c.Ref,
			Covers:    verb == VerbLinksAndCovers,
			File:      f.Path,
			StartLine: LineOf(src, arrow),
			EndLine:   lang.EndLine(call),
			Span:      model.Span{Start: objEnd, End: callEnd},
			Raw:       string(src[arrow:callEnd]),
		}
		if len(args) > 1 {
			if list := call.ChildByFieldName("arguments"); list != nil {
				d.Span = listItemSpan(list, argumentNode(arg), argumentNodes(list), src)
				d.Raw = lang.NodeText(arg, src)
			}
		}
		if ph, ok := model.ParsePlaceholder(v); ok {
			d.Placeholder = &ph
		} else {
			d.Unit = model.ParseCodeUnitRef(v)
			if d.Unit.Class == "" {
				continue
			}
		}
		f.Declarations = append(f.Declarations, d)
	}
}

// describeGroups returns the names of enclosing describe() blocks,
// outermost first.
func describeGroups(f *File, n *sitter.Node, src []byte) []string {
	var groups []string
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "function_call_expression" || lang.CallName(p, src) != "describe" {
			continue
		}
		args := lang.CallArguments(p)
		if len(args) == 0 {
			continue
		}
		if v, ok := f.evalString(args[0], src, ""); ok {
			groups = append([]string{v}, groups...)
		}
	}
	return groups
}

// argumentNode returns the enclosing argument wrapper of a value node.
func argumentNode(v *sitter.Node) *sitter.Node {
	if p := v.Parent(); p != nil && p.Type() == "argument" {
		return p
	}
	return v
}

func argumentNodes(list *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, list.NamedChildCount())
	for i := 0; i < int(list.NamedChildCount()); i++ {
		out = append(out, list.NamedChild(i))
	}
	return out
}
