package passes

import "github.com/fhegraph/hedag/dag"

// Transpile runs the rewriting pipeline of §4.3 over d in order, P1
// through P11, gating the CKKS-only passes by the Dag's inferred scheme
// family. TypeHandler is re-run after every structural pass that can
// introduce nodes it has not yet classified (ConstantFold's folded
// replacements, ReductionLogExpander's rebuilt balanced trees), since
// later passes (Rescaler, EncodeInserter) read Type off the Context
// rather than recomputing it themselves.
func Transpile(d *dag.Dag) *Context {
	CleanNode(d)

	ctx := NewContext(d)
	TypeHandler(ctx)

	ConstantFold(ctx)
	TypeHandler(ctx)

	Reduction(d)
	ReductionLogExpander(ctx)
	TypeHandler(ctx)

	if ctx.Family == FamilyCKKS {
		Rescaler(ctx)
	}

	EncodeInserter(ctx)

	if ctx.Family == FamilyCKKS {
		LazyRelinearizer(ctx)
		ModSwitcher(ctx)
	}
	TypeHandler(ctx)

	LevelsChecker(ctx)
	ScalesChecker(ctx)
	ParameterChecker(ctx)

	MultDepthCount(ctx)

	return ctx
}
