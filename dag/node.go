package dag

// NodeIndex is a monotonically assigned, unique-within-its-Dag node
// identifier. Operand and use edges are stored as NodeIndex rather than
// *Node, so the arena (Dag.nodes) is the sole owner of node storage.
type NodeIndex int32

// Node is one operation in the graph: a kind, an ordered operand list
// (use->def edges the node owns), a use list (def->use back-edges,
// non-owning) and an attribute list. A Node belongs to exactly one Dag.
type Node struct {
	index    NodeIndex
	kind     OpKind
	operands []NodeIndex
	uses     []NodeIndex
	attrs    Attrs
	init     bool
}

// Index returns this node's unique index within its owning Dag.
func (n *Node) Index() NodeIndex { return n.index }

// Kind returns the operation kind.
func (n *Node) Kind() OpKind { return n.kind }

// Operands returns the ordered operand indices. Callers must not
// mutate the returned slice.
func (n *Node) Operands() []NodeIndex { return n.operands }

// Uses returns the (unordered) indices of nodes using this one as an
// operand. Callers must not mutate the returned slice.
func (n *Node) Uses() []NodeIndex { return n.uses }

// Attrs returns the mutable attribute list.
func (n *Node) Attrs() *Attrs { return &n.attrs }

// IsSource reports whether n has no operands.
func (n *Node) IsSource() bool { return len(n.operands) == 0 }

// IsSink reports whether n has no uses.
func (n *Node) IsSink() bool { return len(n.uses) == 0 }

func removeIndex(s []NodeIndex, v NodeIndex) []NodeIndex {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
