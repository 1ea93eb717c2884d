package pair

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

func prod(token, member string) model.Declaration {
	ph, _ := model.ParsePlaceholder(token)
	return model.Declaration{
		Side:        model.ProductionSide,
		Kind:        model.KindLink,
		Style:       model.StyleAttribute,
		Unit:        model.CodeUnitRef{Class: `App\Services\CheckoutService`, Member: member},
		Placeholder: &ph,
		File:        "app/Services/CheckoutService.php",
		StartLine:   10,
	}
}

func test(token, name string, style model.Style, covers bool) model.Declaration {
	ph, _ := model.ParsePlaceholder(token)
	return model.Declaration{
		Side:        model.TestSide,
		Kind:        model.KindLink,
		Style:       style,
		Test:        model.TestRef{Class: `Tests\Feature\CheckoutTest`, Case: name},
		Covers:      covers,
		Placeholder: &ph,
		File:        "tests/Feature/CheckoutTest.php",
		StartLine:   5,
	}
}

func count(actions []model.EditAction, kind model.ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestResolveCartesianProduct(t *testing.T) {
	t.Parallel()

	occ := []model.Declaration{
		prod("@checkout", "pay"),
		prod("@checkout", "refund"),
		test("@checkout", "a", model.StyleChain, true),
		test("@checkout", "b", model.StyleChain, true),
		test("@checkout", "c", model.StyleChain, false),
	}
	res, err := Resolve(occ, "")
	require.NoError(t, err)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, 6, res.Tokens[0].Links())
	assert.Empty(t, res.Errors)

	assert.Equal(t, 6, count(res.Actions, model.AddProductionSideDeclaration))
	assert.Equal(t, 6, count(res.Actions, model.AddTestSideLink))
	assert.Equal(t, 5, count(res.Actions, model.RemoveDeclaration))

	pairs := make(map[string]bool)
	for _, a := range res.Actions {
		if a.Kind == model.AddTestSideLink {
			pairs[fmt.Sprintf("%s|%s", a.Unit.Member, a.Test.Case)] = true
			assert.Equal(t, a.Test.Case != "c", a.Covers, "covers follows the test occurrence")
		}
	}
	assert.Len(t, pairs, 6)
}

func TestResolveDocForm(t *testing.T) {
	t.Parallel()

	res, err := Resolve([]model.Declaration{
		prod("@@checkout", "pay"),
		test("@checkout", "test_pays", model.StyleAttribute, true),
	}, "")
	require.NoError(t, err)
	require.Len(t, res.Actions, 4)
	assert.Equal(t, model.AddDocCrossReference, res.Actions[0].Kind)
	assert.Equal(t, model.ProductionSide, res.Actions[0].Side)
	assert.Equal(t, model.AddTestSideLink, res.Actions[1].Kind)
}

func TestResolveDocOnChainTestIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Resolve([]model.Declaration{
		prod("@checkout", "pay"),
		test("@@checkout", "pays", model.StyleChain, false),
	}, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.DocStyleUnsupported))
}

func TestResolveOneSidedTokenIsReported(t *testing.T) {
	t.Parallel()

	res, err := Resolve([]model.Declaration{
		prod("@lonely", "pay"),
		test("@stray", "x", model.StyleChain, true),
	}, "")
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	assert.Equal(t, 2, res.Unresolved())
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.True(t, errors.HasCode(e, errors.OrphanPlaceholder))
	}
	assert.Contains(t, res.Errors[0].Error(), "none on the test side")
	assert.Contains(t, res.Errors[1].Error(), "none on the production side")
}

func TestResolveFilter(t *testing.T) {
	t.Parallel()

	occ := []model.Declaration{
		prod("@a", "pay"), test("@a", "x", model.StyleChain, true),
		prod("@b", "refund"), test("@b", "y", model.StyleChain, true),
	}
	for _, only := range []string{"@b", "b", "@@b"} {
		res, err := Resolve(occ, only)
		require.NoError(t, err)
		require.Len(t, res.Tokens, 1, only)
		assert.Equal(t, "b", res.Tokens[0].Name)
	}

	res, err := Resolve(occ, "@missing")
	require.NoError(t, err)
	assert.Empty(t, res.Tokens)
}

func TestGroupSharesNameAcrossForms(t *testing.T) {
	t.Parallel()

	tokens := Group([]model.Declaration{
		prod("@@x", "a"),
		test("@x", "t", model.StyleAttribute, true),
		prod("@y", "b"),
	})
	require.Len(t, tokens, 2)
	assert.Equal(t, "x", tokens[0].Name)
	assert.True(t, tokens[0].Resolved())
	assert.False(t, tokens[1].Resolved())
}
