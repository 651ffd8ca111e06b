package passes

import "github.com/fhegraph/hedag/dag"

// replaceUsesExcept rewires every current user of oldIdx to newIdx,
// except the node at exceptIdx. It exists because inserting a new node
// atop oldIdx (e.g. a Rescale or Encode) makes that new node a use of
// oldIdx before the surrounding rewrite is done; a plain ReplaceAllUses
// at that point would loop the new node back onto itself.
func replaceUsesExcept(d *dag.Dag, oldIdx, exceptIdx dag.NodeIndex) {
	old := d.Node(oldIdx)
	users := append([]dag.NodeIndex(nil), old.Uses()...)
	for _, u := range users {
		if u == exceptIdx {
			continue
		}
		d.ReplaceOperand(d.Node(u), oldIdx, exceptIdx)
	}
}
