// Package orphan finds declarations whose target no longer exists.
package orphan

import "github.com/TestFlowLabs/testlink-sub002/internal/model"

// FindOrphans returns, in input order, the declarations whose target is
// absent from the valid set of the opposite side. Production declarations
// target tests and are checked against validTests; test declarations target
// code units and are checked against validUnits. Placeholders are never
// orphans.
func FindOrphans(decls []model.Declaration, validUnits, validTests map[string]struct{}) []model.Declaration {
	var out []model.Declaration
	for _, d := range decls {
		if d.Placeholder != nil {
			continue
		}
		valid := validUnits
		if d.Side == model.ProductionSide {
			valid = validTests
		}
		if _, ok := valid[d.Target()]; !ok {
			out = append(out, d)
		}
	}
	return out
}
