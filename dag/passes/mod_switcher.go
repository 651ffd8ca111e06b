package passes

import "github.com/fhegraph/hedag/dag"

// ModSwitcher is P9, CKKS only. It first assigns every node a "reverse"
// level — sources at 0, a Rescale one above its operand, any other node
// at the max of its operands — then, per original node (the chains it
// inserts are never themselves reconsidered), inserts a ModSwitch chain
// on any use that expects the operand one or more levels higher than it
// currently sits at. Finally every level is flipped to absolute
// (max_level - level) and stamped onto EncodeAtLevel for sources and
// Encode nodes, so absolute levels increase from keys toward outputs.
func ModSwitcher(ctx *Context) {
	if ctx.Family != FamilyCKKS {
		return
	}
	d := ctx.D

	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		switch {
		case n.Kind() == dag.OpRescale:
			ctx.Level.Set(n.Index(), levelOf(ctx, n.Operands()[0])+1)
		case len(n.Operands()) == 0:
			ctx.Level.Set(n.Index(), 0)
		default:
			m := levelOf(ctx, n.Operands()[0])
			for _, o := range n.Operands()[1:] {
				if l := levelOf(ctx, o); l > m {
					m = l
				}
			}
			ctx.Level.Set(n.Index(), m)
		}
	})

	originalCount := d.NumNodes()
	for i := 0; i < originalCount; i++ {
		idx := dag.NodeIndex(i)
		n := d.Node(idx)
		if n == nil {
			continue
		}
		myLevel := levelOf(ctx, idx)
		for _, u := range append([]dag.NodeIndex(nil), n.Uses()...) {
			diff := levelOf(ctx, u) - myLevel
			if diff <= 0 {
				continue
			}
			cur := n
			for i := 0; i < diff; i++ {
				ms := d.MakeModSwitch(cur)
				ctx.Level.Set(ms.Index(), levelOf(ctx, cur.Index())+1)
				ctx.Type.Set(ms.Index(), ctx.Type.At(cur.Index()))
				ctx.Scale.Set(ms.Index(), ctx.Scale.At(cur.Index()))
				cur = ms
			}
			d.ReplaceOperand(d.Node(u), idx, cur.Index())
		}
	}

	maxLevel := 0
	total := d.NumNodes()
	for i := 0; i < total; i++ {
		if l := levelOf(ctx, dag.NodeIndex(i)); l > maxLevel {
			maxLevel = l
		}
	}
	for i := 0; i < total; i++ {
		idx := dag.NodeIndex(i)
		n := d.Node(idx)
		if n == nil {
			continue
		}
		l, ok := ctx.Level.At(idx)
		if !ok {
			continue
		}
		abs := maxLevel - l
		ctx.Level.Set(idx, abs)
		if n.Kind() == dag.OpInput || n.Kind() == dag.OpConstant || n.Kind() == dag.OpEncode {
			n.Attrs().SetU32(dag.AttrEncodeAtLevel, uint32(abs))
		}
	}
}

func levelOf(ctx *Context, idx dag.NodeIndex) int {
	l, _ := ctx.Level.At(idx)
	return l
}
