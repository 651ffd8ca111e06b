package passes

import "github.com/fhegraph/hedag/dag"

// LazyRelinearizer is P8: forward, CKKS only. A cipher x cipher
// multiplication's output is "pending relinearization"; the bit rides
// along through simple pass-throughs (Negate, Rescale, ModSwitch, and
// Add/Sub against a non-pending or plain operand) until it reaches a
// node that cannot safely stay unrelinearized: another cipher x cipher
// multiply, a rotation, an output, or a node consumed more than once.
// At that point an explicit Relinearize is inserted and the bit clears.
func LazyRelinearizer(ctx *Context) {
	if ctx.Family != FamilyCKKS {
		return
	}
	d := ctx.D
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		if isCipherCipherMul(ctx, n) {
			ctx.PendingRelin.Set(n.Index(), true)
		} else if pending, tracked := inheritedPending(ctx, n); tracked && pending {
			ctx.PendingRelin.Set(n.Index(), true)
		}
		pending, _ := ctx.PendingRelin.At(n.Index())
		if !pending || !needsRelin(d, ctx, n) {
			return
		}
		r := d.MakeRelinearize(n)
		ctx.Type.Set(r.Index(), ctx.Type.At(n.Index()))
		ctx.Scale.Set(r.Index(), ctx.Scale.At(n.Index()))
		replaceUsesExcept(d, n.Index(), r.Index())
		ctx.PendingRelin.Set(n.Index(), false)
	})
}

func isCipherCipherMul(ctx *Context, n *dag.Node) bool {
	if n.Kind() != dag.OpMul {
		return false
	}
	ops := n.Operands()
	return len(ops) == 2 && ctx.Type.At(ops[0]) == dag.Cipher && ctx.Type.At(ops[1]) == dag.Cipher
}

// inheritedPending reports, for a pass-through kind, whether its pending
// status should be inherited from an operand, and whether this kind
// participates in inheritance at all (the second bool).
func inheritedPending(ctx *Context, n *dag.Node) (bool, bool) {
	switch n.Kind() {
	case dag.OpNegate, dag.OpRescale, dag.OpModSwitch:
		p, _ := ctx.PendingRelin.At(n.Operands()[0])
		return p, true
	case dag.OpAdd, dag.OpSub:
		for _, o := range n.Operands() {
			if ctx.Type.At(o) != dag.Cipher {
				continue
			}
			if p, _ := ctx.PendingRelin.At(o); p {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}

func needsRelin(d *dag.Dag, ctx *Context, n *dag.Node) bool {
	uses := n.Uses()
	if len(uses) > 1 {
		return true
	}
	if len(uses) == 0 {
		return false
	}
	use := d.Node(uses[0])
	switch use.Kind() {
	case dag.OpOutput, dag.OpRotateLeftConst, dag.OpRotateRightConst:
		return true
	case dag.OpMul:
		ops := use.Operands()
		return len(ops) == 2 && ctx.Type.At(ops[0]) == dag.Cipher && ctx.Type.At(ops[1]) == dag.Cipher
	}
	return false
}
