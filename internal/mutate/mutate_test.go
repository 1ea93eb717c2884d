package mutate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/logging"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

var (
	create   = model.CodeUnitRef{Class: `App\Services\UserService`, Member: "create"}
	remove   = model.CodeUnitRef{Class: `App\Services\UserService`, Member: "delete"}
	checkout = model.CodeUnitRef{Class: `App\Services\UserService`, Member: "checkout"}
	creates  = model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "creates user"}

	prodTarget = Target{Path: "app/Services/UserService.php", Side: model.ProductionSide}
	pestTarget = Target{Path: "tests/Unit/UserServiceTest.php", Side: model.TestSide, Class: `Tests\Unit\UserServiceTest`}
	unitTarget = Target{Path: "tests/Unit/UserServiceTest.php", Side: model.TestSide, Class: `Tests\Unit\UserServiceTest`}
)

func newMutator() *Mutator {
	return New(config.DefaultConfig().Attributes, logging.Discard())
}

func apply(t *testing.T, target Target, src string, actions ...model.EditAction) (string, *Result) {
	t.Helper()
	res, err := newMutator().Apply(target, []byte(src), actions)
	require.NoError(t, err)
	return string(res.Text), res
}

func addProd(unit model.CodeUnitRef, test model.TestRef) model.EditAction {
	return model.EditAction{Kind: model.AddProductionSideDeclaration, Unit: unit, Test: test, Side: model.ProductionSide}
}

func addTest(unit model.CodeUnitRef, test model.TestRef, covers bool) model.EditAction {
	return model.EditAction{Kind: model.AddTestSideLink, Unit: unit, Test: test, Covers: covers, Side: model.TestSide}
}

// --- attribute insertion ---

const serviceWithImport = `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    public function create(): void
    {
    }
}
`

func TestAddProductionAttributeReusesImport(t *testing.T) {
	t.Parallel()

	out, res := apply(t, prodTarget, serviceWithImport, addProd(create, creates))
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    #[TestedBy('Tests\Unit\UserServiceTest', 'creates user')]
    public function create(): void
    {
    }
}
`, out)
}

func TestAddProductionAttributeIsIdempotent(t *testing.T) {
	t.Parallel()

	once, _ := apply(t, prodTarget, serviceWithImport, addProd(create, creates))
	twice, res := apply(t, prodTarget, once, addProd(create, creates))
	assert.Equal(t, once, twice)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Skipped)
}

func TestAddProductionAttributeAddsImportAfterNamespace(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

class UserService
{
    public function create(): void
    {
    }
}
`
	out, _ := apply(t, prodTarget, src, addProd(create, creates), addProd(create, model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "other"}))
	assert.Equal(t, `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    #[TestedBy('Tests\Unit\UserServiceTest', 'creates user')]
    #[TestedBy('Tests\Unit\UserServiceTest', 'other')]
    public function create(): void
    {
    }
}
`, out)
}

func TestAddProductionAttributeAddsImportAfterLastUse(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

use App\Models\User;

class UserService
{
    public function create(): void
    {
    }
}
`
	out, _ := apply(t, prodTarget, src, addProd(create, creates))
	assert.Contains(t, out, "use App\\Models\\User;\nuse TestFlowLabs\\TestingAttributes\\TestedBy;\n\nclass UserService")
}

func TestAddProductionAttributeNextToSameKind(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    #[TestedBy('Tests\Unit\UserServiceTest', 'first')]
    #[Deprecated]
    public function create(): void
    {
    }
}
`
	out, _ := apply(t, prodTarget, src, addProd(create, creates))
	assert.Contains(t, out, `    #[TestedBy('Tests\Unit\UserServiceTest', 'first')]
    #[TestedBy('Tests\Unit\UserServiceTest', 'creates user')]
    #[Deprecated]
`)
}

func TestAddProductionAttributeImportConflict(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

use Legacy\TestedBy;

class UserService
{
    public function create(): void
    {
    }
}
`
	out, _ := apply(t, prodTarget, src, addProd(create, creates))
	assert.Contains(t, out, `    #[\TestFlowLabs\TestingAttributes\TestedBy('Tests\Unit\UserServiceTest', 'creates user')]`)
	assert.NotContains(t, out, `use TestFlowLabs`)
}

func TestAddClassLevelProductionAttribute(t *testing.T) {
	t.Parallel()

	out, _ := apply(t, prodTarget, serviceWithImport,
		addProd(model.CodeUnitRef{Class: create.Class}, model.TestRef{Class: `Tests\Unit\UserServiceTest`}))
	assert.Contains(t, out, "#[TestedBy('Tests\\Unit\\UserServiceTest')]\nclass UserService")
}

func TestAddProductionAttributeMissingMember(t *testing.T) {
	t.Parallel()

	out, res := apply(t, prodTarget, serviceWithImport, addProd(remove, creates))
	assert.Equal(t, serviceWithImport, out)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.HasCode(res.Errors[0], errors.MemberNotFound))
}

const phpunitTest = `<?php

namespace Tests\Unit;

use App\Services\UserService;
use PHPUnit\Framework\TestCase;

class UserServiceTest extends TestCase
{
    public function test_creates_user(): void
    {
    }
}
`

func TestAddTestAttribute(t *testing.T) {
	t.Parallel()

	test := model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "test_creates_user"}
	out, _ := apply(t, unitTarget, phpunitTest, addTest(create, test, true))
	assert.Equal(t, `<?php

namespace Tests\Unit;

use App\Services\UserService;
use PHPUnit\Framework\TestCase;
use TestFlowLabs\TestingAttributes\LinksAndCovers;

class UserServiceTest extends TestCase
{
    #[LinksAndCovers(UserService::class, 'create')]
    public function test_creates_user(): void
    {
    }
}
`, out)

	again, res := apply(t, unitTarget, out, addTest(create, test, true))
	assert.Equal(t, out, again)
	assert.Equal(t, 0, res.Applied)
}

// --- chain insertion ---

func TestAddChainCallInline(t *testing.T) {
	t.Parallel()

	src := `<?php

use App\Services\UserService;

test('creates user', function () {
    expect(true)->toBeTrue();
});
`
	out, _ := apply(t, pestTarget, src, addTest(create, creates, true))
	assert.Equal(t, `<?php

use App\Services\UserService;

test('creates user', function () {
    expect(true)->toBeTrue();
})->linksAndCovers(UserService::class.'::create');
`, out)

	again, res := apply(t, pestTarget, out, addTest(create, creates, true))
	assert.Equal(t, out, again)
	assert.Equal(t, 1, res.Skipped)
}

func TestAddChainCallMultiline(t *testing.T) {
	t.Parallel()

	src := `<?php

it('deletes', function () {
})
    ->group('unit');
`
	deletes := model.TestRef{Class: creates.Class, Case: "it deletes"}
	out, _ := apply(t, pestTarget, src, addTest(remove, deletes, false))
	assert.Equal(t, `<?php

it('deletes', function () {
})
    ->group('unit')
    ->links(\App\Services\UserService::class.'::delete');
`, out)
}

func TestAddChainCallNestedDescribe(t *testing.T) {
	t.Parallel()

	src := `<?php

describe('users', function () {
    test('creates user', function () {
    });
});
`
	nested := model.TestRef{Class: creates.Class, Case: "creates user", Groups: []string{"users"}}
	out, res := apply(t, pestTarget, src, addTest(create, nested, true), addTest(create, creates, true))
	assert.Contains(t, out, "    })->linksAndCovers(\\App\\Services\\UserService::class.'::create');\n});")
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.HasCode(res.Errors[0], errors.CaseNotFound))
}

// --- removal ---

func TestRemoveAttributeLine(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    #[TestedBy('@checkout')]
    public function checkout(): void
    {
    }
}
`
	decl := model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: checkout, Placeholder: &model.Placeholder{Token: "@checkout"}}
	out, res := apply(t, prodTarget, src, model.EditAction{Kind: model.RemoveDeclaration, Decl: &decl})
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    public function checkout(): void
    {
    }
}
`, out)

	again, res := apply(t, prodTarget, out, model.EditAction{Kind: model.RemoveDeclaration, Decl: &decl})
	assert.Equal(t, out, again)
	assert.Equal(t, 0, res.Applied)
}

func TestRemoveAttributeFromGroup(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace Tests\Unit;

use App\Services\UserService;
use PHPUnit\Framework\Attributes\Test;
use TestFlowLabs\TestingAttributes\Links;

class UserServiceTest
{
    #[Test, Links(UserService::class, 'delete')]
    public function deletes_user(): void
    {
    }
}
`
	decl := model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: remove,
		Test: model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "deletes_user"}}
	out, _ := apply(t, unitTarget, src, model.EditAction{Kind: model.RemoveDeclaration, Decl: &decl})
	assert.Contains(t, out, "    #[Test]\n    public function deletes_user")
}

func TestReplacePlaceholderInOneBatch(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

use TestFlowLabs\TestingAttributes\TestedBy;

class UserService
{
    #[TestedBy('@checkout')]
    public function checkout(): void
    {
    }
}
`
	decl := model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: checkout, Placeholder: &model.Placeholder{Token: "@checkout"}}
	a := model.TestRef{Class: `Tests\Feature\CheckoutTest`, Case: "a"}
	b := model.TestRef{Class: `Tests\Feature\CheckoutTest`, Case: "b"}
	out, _ := apply(t, prodTarget, src,
		addProd(checkout, a),
		addProd(checkout, b),
		model.EditAction{Kind: model.RemoveDeclaration, Decl: &decl},
	)
	assert.Contains(t, out, `{
    #[TestedBy('Tests\Feature\CheckoutTest', 'a')]
    #[TestedBy('Tests\Feature\CheckoutTest', 'b')]
    public function checkout(): void`)
	assert.NotContains(t, out, "@checkout")
}

func TestRemoveChainCall(t *testing.T) {
	t.Parallel()

	src := `<?php

it('deletes', function () {
})
    ->group('unit')
    ->links('@deletion');
`
	deletes := model.TestRef{Class: creates.Class, Case: "it deletes"}
	decl := model.Declaration{Side: model.TestSide, Kind: model.KindLink, Test: deletes, Placeholder: &model.Placeholder{Token: "@deletion"}}
	out, _ := apply(t, pestTarget, src,
		model.EditAction{Kind: model.RemoveDeclaration, Decl: &decl},
		addTest(remove, deletes, false),
	)
	assert.Equal(t, `<?php

it('deletes', function () {
})
    ->group('unit')
    ->links(\App\Services\UserService::class.'::delete');
`, out)
}

// --- doc references ---

func TestAddDocCreatesBlock(t *testing.T) {
	t.Parallel()

	out, _ := apply(t, prodTarget, serviceWithImport, model.EditAction{
		Kind: model.AddDocCrossReference, Unit: create, Test: creates, Side: model.ProductionSide,
	})
	assert.Contains(t, out, `{
    /**
     * @see \Tests\Unit\UserServiceTest::creates user
     */
    public function create(): void`)
}

func TestAddDocAppendsToBlock(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

class UserService
{
    /**
     * Creates a user.
     */
    public function create(): void
    {
    }
}
`
	action := model.EditAction{Kind: model.AddDocCrossReference, Unit: create, Test: creates, Side: model.ProductionSide}
	out, _ := apply(t, prodTarget, src, action)
	assert.Contains(t, out, `    /**
     * Creates a user.
     * @see \Tests\Unit\UserServiceTest::creates user
     */`)

	again, res := apply(t, prodTarget, out, action)
	assert.Equal(t, out, again)
	assert.Equal(t, 0, res.Applied)
}

func TestAddDocExpandsOneLineBlock(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

class UserService
{
    /** Creates a user. */
    public function create(): void
    {
    }
}
`
	out, _ := apply(t, prodTarget, src, model.EditAction{
		Kind: model.AddDocCrossReference, Unit: create, Test: creates, Side: model.ProductionSide,
	})
	assert.Contains(t, out, `    /**
     * Creates a user.
     * @see \Tests\Unit\UserServiceTest::creates user
     */
    public function create(): void`)
}

func TestAddDocOnChainTestUnsupported(t *testing.T) {
	t.Parallel()

	src := "<?php\n\ntest('creates user', fn () => true);\n"
	out, res := apply(t, pestTarget, src, model.EditAction{
		Kind: model.AddDocCrossReference, Unit: create, Test: creates, Side: model.TestSide,
	})
	assert.Equal(t, src, out)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.HasCode(res.Errors[0], errors.DocStyleUnsupported))
}

func TestRemoveDocLine(t *testing.T) {
	t.Parallel()

	src := `<?php

namespace App\Services;

class UserService
{
    /**
     * Creates a user.
     *
     * @see \Tests\Unit\UserServiceTest::test_gone
     */
    public function create(): void
    {
    }

    /**
     * @see \Tests\Unit\UserServiceTest::test_gone
     */
    public function delete(): void
    {
    }
}
`
	gone := model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "test_gone"}
	d1 := model.Declaration{Side: model.ProductionSide, Kind: model.KindDoc, Unit: create, Test: gone}
	d2 := model.Declaration{Side: model.ProductionSide, Kind: model.KindDoc, Unit: remove, Test: gone}
	out, res := apply(t, prodTarget, src,
		model.EditAction{Kind: model.RemoveDeclaration, Decl: &d1},
		model.EditAction{Kind: model.RemoveDeclaration, Decl: &d2},
	)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, `<?php

namespace App\Services;

class UserService
{
    /**
     * Creates a user.
     *
     */
    public function create(): void
    {
    }

    public function delete(): void
    {
    }
}
`, out)
}

// --- patches ---

func TestApplyPatchesOrdering(t *testing.T) {
	t.Parallel()

	src := []byte("abcdef")
	out := applyPatches(src, []patch{
		{start: 1, end: 1, text: "X", seq: 0},
		{start: 1, end: 1, text: "Y", seq: 1},
		{start: 1, end: 3, seq: 2},
		{start: 5, end: 5, text: "Z", seq: 3},
		{start: 2, end: 4, seq: 4},
	})
	assert.Equal(t, "aXYeZf", string(out))
	assert.Equal(t, "abcdef", string(src))
}

func TestApplyPatchesDropsInsertInsideDelete(t *testing.T) {
	t.Parallel()

	out := applyPatches([]byte("abcdef"), []patch{
		{start: 1, end: 4, seq: 0},
		{start: 2, end: 2, text: "X", seq: 1},
		{start: 4, end: 4, text: "Y", seq: 2},
	})
	assert.Equal(t, "aYef", string(out))
}
