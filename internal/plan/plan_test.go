package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/logging"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/registry"
)

var (
	svc      = model.CodeUnitRef{Class: `App\Services\UserService`}
	create   = model.CodeUnitRef{Class: `App\Services\UserService`, Member: "create"}
	testCls  = model.TestRef{Class: `Tests\Unit\UserServiceTest`}
	creates  = model.TestRef{Class: `Tests\Unit\UserServiceTest`, Case: "creates user"}
	prodFile = "app/Services/UserService.php"
	testFile = "tests/Unit/UserServiceTest.php"
)

func project() *registry.Registry {
	r := registry.New()
	r.AddUnitSite(svc, prodFile)
	r.AddUnitSite(create, prodFile)
	r.AddTestSite(testCls, testFile, model.StyleChain)
	r.AddTestSite(creates, testFile, model.StyleChain)
	return r
}

func TestPlanProductionOnlyPair(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: creates, File: prodFile})

	actions, errs := New(r, nil, Options{}, logging.Discard()).Plan()
	require.Empty(t, errs)
	require.Len(t, actions, 1)
	assert.Equal(t, model.EditAction{
		Kind:   model.AddTestSideLink,
		File:   testFile,
		Unit:   create,
		Test:   creates,
		Covers: true,
		Side:   model.TestSide,
	}, actions[0])
}

func TestPlanLinkOnly(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: creates})

	actions, _ := New(r, nil, Options{LinkOnly: true}, logging.Discard()).Plan()
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Covers)
}

func TestPlanTestOnlyPair(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: create, Test: creates, Covers: true})

	actions, errs := New(r, nil, Options{}, logging.Discard()).Plan()
	require.Empty(t, errs)
	require.Len(t, actions, 1)
	assert.Equal(t, model.AddProductionSideDeclaration, actions[0].Kind)
	assert.Equal(t, prodFile, actions[0].File)
}

func TestPlanSyncedPairIsQuiet(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: creates})
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: create, Test: creates, Covers: true})

	actions, errs := New(r, nil, Options{}, logging.Discard()).Plan()
	assert.Empty(t, actions)
	assert.Empty(t, errs)
}

func TestPlanDiscoveryOrderAndDedup(t *testing.T) {
	t.Parallel()
	r := project()
	second := model.TestRef{Class: testCls.Class, Case: "b"}
	first := model.TestRef{Class: testCls.Class, Case: "a"}
	r.AddTestSite(second, testFile, model.StyleChain)
	r.AddTestSite(first, testFile, model.StyleChain)

	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: second})
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: first})
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: second, File: "dup.php"})

	actions, _ := New(r, nil, Options{}, logging.Discard()).Plan()
	require.Len(t, actions, 2)
	assert.Equal(t, "b", actions[0].Test.Case)
	assert.Equal(t, "a", actions[1].Test.Case)
}

func TestPlanMissingTargetsAreCollected(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create,
		Test: model.TestRef{Class: testCls.Class, Case: "missing"}, File: prodFile, StartLine: 9})
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink,
		Unit: model.CodeUnitRef{Class: svc.Class, Member: "gone"}, Test: creates})
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink,
		Unit: model.CodeUnitRef{Class: `App\Nowhere`}, Test: creates})

	actions, errs := New(r, nil, Options{}, logging.Discard()).Plan()
	assert.Empty(t, actions)
	require.Len(t, errs, 3)
	assert.True(t, errors.HasCode(errs[0], errors.CaseNotFound))
	assert.Contains(t, errs[0].Error(), prodFile+":9")
	assert.True(t, errors.HasCode(errs[1], errors.MemberNotFound))
	assert.True(t, errors.HasCode(errs[2], errors.LocatorNotFound))
}

type stubFinder struct{}

func (stubFinder) FindUnit(unit model.CodeUnitRef) (string, error) {
	return "lib/" + unit.Class + ".php", nil
}

func (stubFinder) FindTest(test model.TestRef) (string, model.Style, error) {
	return "", "", errors.Newf(errors.LocatorNotFound, "no file found for %s", test.Class)
}

func TestPlanFallsBackToFinder(t *testing.T) {
	t.Parallel()
	r := project()
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink,
		Unit: model.CodeUnitRef{Class: "Lib"}, Test: creates})

	actions, errs := New(r, stubFinder{}, Options{}, logging.Discard()).Plan()
	require.Empty(t, errs)
	require.Len(t, actions, 1)
	assert.Equal(t, "lib/Lib.php", actions[0].File)
}

func TestPlanPrune(t *testing.T) {
	t.Parallel()
	r := project()
	gone := model.CodeUnitRef{Class: svc.Class, Member: "gone"}
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: gone, Test: creates, File: testFile})

	actions, errs := New(r, nil, Options{Prune: true}, logging.Discard()).Plan()
	assert.Empty(t, errs)
	require.Len(t, actions, 1)
	assert.Equal(t, model.RemoveDeclaration, actions[0].Kind)
	assert.Equal(t, gone, actions[0].Decl.Unit)
}

func TestPlanDocReferences(t *testing.T) {
	t.Parallel()
	r := project()
	phpunit := model.TestRef{Class: `Tests\Unit\OtherTest`, Case: "test_x"}
	r.AddTestSite(phpunit, "tests/Unit/OtherTest.php", model.StyleAttribute)
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: creates})
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: create, Test: creates, Covers: true})
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindLink, Unit: create, Test: phpunit})
	r.RegisterDeclaration(model.Declaration{Side: model.TestSide, Kind: model.KindLink, Unit: create, Test: phpunit, Covers: true})
	r.RegisterDeclaration(model.Declaration{Side: model.ProductionSide, Kind: model.KindDoc, Unit: create, Test: phpunit})

	actions, _ := New(r, nil, Options{Doc: true}, logging.Discard()).Plan()
	require.Len(t, actions, 2)
	// Production @see for the chain test, test-side @see for the PHPUnit test only.
	assert.Equal(t, model.AddDocCrossReference, actions[0].Kind)
	assert.Equal(t, model.ProductionSide, actions[0].Side)
	assert.Equal(t, creates, actions[0].Test)
	assert.Equal(t, model.TestSide, actions[1].Side)
	assert.Equal(t, phpunit, actions[1].Test)
}
