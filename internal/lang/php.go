package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
)

func init() {
	Languages["php"] = &Language{
		Name:       "php",
		Extensions: []string{".php"},
		lang:       php.GetLanguage(),
	}
}

// PHP returns the registered PHP language.
func PHP() *Language {
	return Languages["php"]
}

// UnquotePHPString returns the value of a single- or double-quoted PHP string
// literal. Interpolated strings are reported as not ok.
func UnquotePHPString(text string) (string, bool) {
	if len(text) < 2 {
		return "", false
	}
	q := text[0]
	if (q != '\'' && q != '"') || text[len(text)-1] != q {
		return "", false
	}
	body := text[1 : len(text)-1]
	if q == '"' && strings.ContainsAny(body, "$") {
		return "", false
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			next := body[i+1]
			if next == '\\' || next == q {
				b.WriteByte(next)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), true
}

// QuotePHPString renders s as a single-quoted PHP string literal.
func QuotePHPString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			b.WriteString(`\'`)
		case c == '\\' && (i+1 == len(s) || s[i+1] == '\\' || s[i+1] == '\''):
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// CallName returns the bare name of a function or member call node.
func CallName(node *sitter.Node, source []byte) string {
	var nameNode *sitter.Node
	switch node.Type() {
	case "function_call_expression":
		nameNode = node.ChildByFieldName("function")
	case "member_call_expression", "nullsafe_member_call_expression":
		nameNode = node.ChildByFieldName("name")
	}
	if nameNode == nil {
		return ""
	}
	name := NodeText(nameNode, source)
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// CallArguments returns the value expressions passed to a call, skipping
// named-argument labels.
func CallArguments(node *sitter.Node) []*sitter.Node {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		args = FirstChildOfType(node, "arguments")
	}
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "argument" {
			out = append(out, arg)
			continue
		}
		if n := int(arg.NamedChildCount()); n > 0 {
			out = append(out, arg.NamedChild(n-1))
		}
	}
	return out
}
