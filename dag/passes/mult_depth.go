package passes

import "github.com/fhegraph/hedag/dag"

// MultDepthCount is P11: a forward pass computing, for every node, the
// maximum number of cipher x cipher multiplications along any path from
// a source to it. The graph-wide maximum is stored on the Dag as
// AfterReductionDepth, the figure the scheme dispatcher uses to pick a
// library and the executor uses to decide where to bootstrap; parameter
// selection derives its modulus chain from the Rescale nodes instead.
func MultDepthCount(ctx *Context) {
	d := ctx.D
	depth := dag.NewNodeMap[int](d)
	defer depth.Close()

	max := 0
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		ops := n.Operands()
		d0 := 0
		for _, o := range ops {
			if v := depth.At(o); v > d0 {
				d0 = v
			}
		}
		if isCipherCipherMul(ctx, n) {
			d0++
		}
		depth.Set(n.Index(), d0)
		if d0 > max {
			max = d0
		}
	})
	d.AfterReductionDepth = max
}
