package passes

import "github.com/fhegraph/hedag/dag"

// Reduction is P4: a forward pass that flattens chains of the same
// associative operator. A node that is Add or Mul, has exactly one
// use, and that use is the same kind gets absorbed into it: the edge
// into the use is dropped and this node's own operands are appended in
// its place, so "((a+b)+c)+d" becomes a single 4-ary Add over a,b,c,d.
func Reduction(d *dag.Dag) {
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		if !n.Kind().IsAssociative() {
			return
		}
		uses := n.Uses()
		if len(uses) != 1 {
			return
		}
		use := d.Node(uses[0])
		if use.Kind() != n.Kind() {
			return
		}
		d.AbsorbInto(use, n)
	})
}
