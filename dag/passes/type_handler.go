package passes

import "github.com/fhegraph/hedag/dag"

// TypeHandler is P2: a forward pass propagating Type. Leaves: Constant
// becomes Raw; Input keeps its declared Type. Encode nodes are Plain.
// Other internal nodes combine
// their operands' types per dag.Combine (Cipher > Plain > Raw). Must
// re-run whenever a later pass mutates the graph, since inserted nodes
// (encodes, folded constants, rescales...) need a Type too.
func TypeHandler(ctx *Context) {
	d := ctx.D
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		var t dag.Type
		switch n.Kind() {
		case dag.OpConstant, dag.OpU32Constant:
			t = dag.Raw
		case dag.OpInput:
			t, _ = n.Attrs().TypeAttr()
		case dag.OpEncode:
			t = dag.Plain
		case dag.OpOutput:
			t = ctx.Type.At(n.Operands()[0])
		default:
			ops := n.Operands()
			types := make([]dag.Type, len(ops))
			for i, o := range ops {
				types[i] = ctx.Type.At(o)
			}
			t = dag.Combine(types)
		}
		ctx.Type.Set(n.Index(), t)
		n.Attrs().SetTypeAttr(t)
	})
}
