// Package pair resolves placeholder tokens such as '@checkout' into concrete
// links. A token seen on production code and on tests expands into the
// Cartesian product of its occurrences; every raw occurrence is removed.
package pair

import (
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

// Token groups the occurrences of one placeholder name.
type Token struct {
	Name       string
	Production []model.Declaration
	Tests      []model.Declaration
}

// Resolved reports whether the token was seen on both sides.
func (t Token) Resolved() bool {
	return len(t.Production) > 0 && len(t.Tests) > 0
}

// Links returns the number of concrete links the token expands into.
func (t Token) Links() int {
	return len(t.Production) * len(t.Tests)
}

// Result is the outcome of pairing.
type Result struct {
	Tokens  []Token
	Actions []model.EditAction
	// Errors holds one ORPHAN_PLACEHOLDER per one-sided token.
	Errors []error
}

// Unresolved counts tokens left without a counterpart.
func (r *Result) Unresolved() int {
	n := 0
	for _, t := range r.Tokens {
		if !t.Resolved() {
			n++
		}
	}
	return n
}

// Group collects placeholder occurrences by name in first-seen order.
// '@name' and '@@name' share a name; each occurrence keeps its own form.
func Group(placeholders []model.Declaration) []Token {
	index := make(map[string]int)
	var tokens []Token
	for _, d := range placeholders {
		if d.Placeholder == nil {
			continue
		}
		name := d.Placeholder.Name()
		i, ok := index[name]
		if !ok {
			i = len(tokens)
			index[name] = i
			tokens = append(tokens, Token{Name: name})
		}
		if d.Side == model.ProductionSide {
			tokens[i].Production = append(tokens[i].Production, d)
		} else {
			tokens[i].Tests = append(tokens[i].Tests, d)
		}
	}
	return tokens
}

// Resolve plans the edits for every placeholder, or only for the token named
// by only ("@checkout", "@@checkout" or "checkout") when it is non-empty.
// A '@@' occurrence on a chain-style test aborts with DOC_STYLE_UNSUPPORTED
// before any action is returned.
func Resolve(placeholders []model.Declaration, only string) (*Result, error) {
	filter := ""
	if only != "" {
		filter = model.Placeholder{Token: only}.Name()
	}

	res := &Result{}
	for _, tok := range Group(placeholders) {
		if filter != "" && tok.Name != filter {
			continue
		}
		res.Tokens = append(res.Tokens, tok)

		if !tok.Resolved() {
			res.Errors = append(res.Errors, orphanError(tok))
			continue
		}
		for _, t := range tok.Tests {
			if t.Placeholder.Doc && t.Style == model.StyleChain {
				return nil, errors.Newf(errors.DocStyleUnsupported,
					"%s: chain-style test %q cannot carry @see references", t.Placeholder.Token, t.Test.Name()).
					At(t.File, t.StartLine)
			}
		}
		res.Actions = append(res.Actions, expand(tok)...)
	}
	return res, nil
}

// expand builds the N×M adds, one per side per pair, followed by the removal
// of each raw occurrence.
func expand(tok Token) []model.EditAction {
	actions := make([]model.EditAction, 0, 2*tok.Links()+len(tok.Production)+len(tok.Tests))
	for _, p := range tok.Production {
		for _, t := range tok.Tests {
			if p.Placeholder.Doc {
				actions = append(actions, model.EditAction{
					Kind: model.AddDocCrossReference, File: p.File, Unit: p.Unit, Test: t.Test, Side: model.ProductionSide,
				})
			} else {
				actions = append(actions, model.EditAction{
					Kind: model.AddProductionSideDeclaration, File: p.File, Unit: p.Unit, Test: t.Test, Side: model.ProductionSide,
				})
			}
		}
	}
	for _, t := range tok.Tests {
		for _, p := range tok.Production {
			if t.Placeholder.Doc {
				actions = append(actions, model.EditAction{
					Kind: model.AddDocCrossReference, File: t.File, Unit: p.Unit, Test: t.Test, Side: model.TestSide,
				})
			} else {
				actions = append(actions, model.EditAction{
					Kind: model.AddTestSideLink, File: t.File, Unit: p.Unit, Test: t.Test, Covers: t.Covers, Side: model.TestSide,
				})
			}
		}
	}
	for _, occurrences := range [][]model.Declaration{tok.Production, tok.Tests} {
		for i := range occurrences {
			d := occurrences[i]
			actions = append(actions, model.EditAction{Kind: model.RemoveDeclaration, File: d.File, Side: d.Side, Decl: &d})
		}
	}
	return actions
}

func orphanError(tok Token) error {
	side, occ := "test", tok.Production
	if len(tok.Production) == 0 {
		side, occ = "production", tok.Tests
	}
	first := occ[0]
	return errors.Newf(errors.OrphanPlaceholder,
		"placeholder @%s has %d occurrence(s) but none on the %s side", tok.Name, len(occ), side).
		At(first.File, first.StartLine)
}
