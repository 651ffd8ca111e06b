package passes

import "github.com/fhegraph/hedag/dag"

// CleanNode is P1: a backward pass dropping nodes with zero uses whose
// kind is neither Input nor Output. Input nodes are preserved even when
// unused so they stay addressable by name (a caller may still want to
// feed a value through encrypt even if no Output currently reads it).
func CleanNode(d *dag.Dag) {
	dag.BackwardPass(d, func(d *dag.Dag, n *dag.Node) {
		if !n.IsSink() {
			return
		}
		if n.Kind() == dag.OpInput || n.Kind() == dag.OpOutput {
			return
		}
		d.DropNode(n.Index())
	})
}
