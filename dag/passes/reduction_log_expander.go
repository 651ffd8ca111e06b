package passes

import (
	"sort"

	"github.com/fhegraph/hedag/dag"
)

// ReductionLogExpander is P5: a forward pass rebuilding any many-operand
// node (as flattened by Reduction, P4) into a balanced binary tree of
// the same operator. Operands are sorted raw/plain first, then ciphers
// by ascending scale, before pairing, so additions keep equal scale
// ladders on both sides and products get pushed to the bottom of the
// tree where depth matters least.
func ReductionLogExpander(ctx *Context) {
	d := ctx.D
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		if !n.Kind().IsAssociative() || len(n.Operands()) <= 2 {
			return
		}
		ops := append([]dag.NodeIndex(nil), n.Operands()...)
		sort.SliceStable(ops, func(i, j int) bool {
			ti, tj := ctx.Type.At(ops[i]), ctx.Type.At(ops[j])
			ci, cj := ti == dag.Cipher, tj == dag.Cipher
			if ci != cj {
				return cj
			}
			return ctx.Scale.At(ops[i]) < ctx.Scale.At(ops[j])
		})
		root := buildBalancedTree(d, n.Kind(), ops)
		d.ReplaceAllUses(n.Index(), root)
		d.DropNode(n.Index())
	})
}

func buildBalancedTree(d *dag.Dag, k dag.OpKind, level []dag.NodeIndex) dag.NodeIndex {
	for len(level) > 1 {
		next := make([]dag.NodeIndex, 0, (len(level)+1)/2)
		i := 0
		for ; i+1 < len(level); i += 2 {
			combined := d.MakeBinary(k, d.Node(level[i]), d.Node(level[i+1]))
			next = append(next, combined.Index())
		}
		if i < len(level) {
			next = append(next, level[i])
		}
		level = next
	}
	return level[0]
}
