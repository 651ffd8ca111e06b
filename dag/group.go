package dag

import "github.com/fhegraph/hedag/errs"

// Group is a DagGroup: a composite of sub-Dags sharing one key set and
// one parameter choice. Children share a single, global NodeIndex space
// so an index is unambiguous across the whole group; this is enforced
// by requiring each child to start allocating where the group last
// left off (see AddChild).
type Group struct {
	Name string

	children   map[string]*Dag
	childOrder []string

	nextIndex NodeIndex
	slots     int

	inputs  map[string]NodeIndex
	outputs map[string]NodeIndex

	DefaultScale        uint32
	AfterReductionDepth int
	Decision            BackendKind
	Serialize           SerializeParams
}

// NewGroup creates an empty DagGroup with the given slot count.
func NewGroup(name string, slots int) (*Group, error) {
	if slots <= 0 || slots&(slots-1) != 0 {
		return nil, errs.E(errs.BadSlotCount, "slot count %d is not a non-zero power of two", slots)
	}
	return &Group{
		Name:    name,
		slots:   slots,
		inputs:  make(map[string]NodeIndex),
		outputs: make(map[string]NodeIndex),
	}, nil
}

// Slots returns the group's packing width.
func (g *Group) Slots() int { return g.slots }

// Children returns the child Dags in the order they were added.
func (g *Group) Children() []*Dag {
	out := make([]*Dag, 0, len(g.childOrder))
	for _, name := range g.childOrder {
		out = append(out, g.children[name])
	}
	return out
}

// Child looks up a child Dag by name.
func (g *Group) Child(name string) (*Dag, bool) {
	d, ok := g.children[name]
	return d, ok
}

// AddChild attaches child to the group. The caller must have called
// child.SetNextNodeIndex(g.NextIndex()) before constructing any node on
// child, so that the whole group shares one global index space; this
// method asserts that invariant rather than silently renumbering.
func (g *Group) AddChild(child *Dag) error {
	if g.children == nil {
		g.children = make(map[string]*Dag)
	}
	if _, exists := g.children[child.Name]; exists {
		return errs.E(errs.GroupDuplicateDag, "dag %q already added to group %q", child.Name, g.Name)
	}
	minIdx, has := child.MinNodeIndex()
	if !has {
		return errs.E(errs.EmptyChildDag, "dag %q has no nodes", child.Name)
	}
	if minIdx < g.nextIndex {
		return errs.E(errs.GroupIndexOverlap, "dag %q min index %d overlaps group counter %d; call SetNextNodeIndex(group.NextIndex()) before building it", child.Name, minIdx, g.nextIndex)
	}
	for name := range child.inputs {
		if _, dup := g.inputs[name]; dup {
			return errs.E(errs.DuplicateInputName, "input %q duplicated across group %q children", name, g.Name)
		}
	}

	child.group = g
	g.children[child.Name] = child
	g.childOrder = append(g.childOrder, child.Name)

	for name, idx := range child.inputs {
		g.inputs[name] = idx
	}
	for name, idx := range child.outputs {
		g.outputs[name] = idx
	}
	if child.NextIndex() > g.nextIndex {
		g.nextIndex = child.NextIndex()
	}
	if g.DefaultScale == 0 || child.DefaultScale < g.DefaultScale {
		g.DefaultScale = child.DefaultScale
	} else {
		child.DefaultScale = g.DefaultScale
	}
	return nil
}

// NextIndex returns the group's shared next-index counter: the value
// every not-yet-built child must call SetNextNodeIndex with before its
// first node is constructed.
func (g *Group) NextIndex() NodeIndex { return g.nextIndex }

// Inputs returns the union of every child's named inputs.
func (g *Group) Inputs() map[string]NodeIndex { return g.inputs }

// Outputs returns the union of every child's named outputs.
func (g *Group) Outputs() map[string]NodeIndex { return g.outputs }

// Sources aggregates every child's source set.
func (g *Group) Sources() map[NodeIndex]struct{} {
	out := make(map[NodeIndex]struct{})
	for _, d := range g.children {
		for idx := range d.Sources() {
			out[idx] = struct{}{}
		}
	}
	return out
}

// Sinks aggregates every child's sink set.
func (g *Group) Sinks() map[NodeIndex]struct{} {
	out := make(map[NodeIndex]struct{})
	for _, d := range g.children {
		for idx := range d.Sinks() {
			out[idx] = struct{}{}
		}
	}
	return out
}

// OwnerOf returns the child Dag that owns node index idx, or false if
// no child claims it (the index belongs to a different group).
func (g *Group) OwnerOf(idx NodeIndex) (*Dag, bool) {
	for _, d := range g.children {
		if int(idx) < len(d.nodes) && d.nodes[idx] != nil {
			return d, true
		}
	}
	return nil, false
}

// MakeNode dispatches node construction to the sub-Dag that owns the
// first operand, matching §4.1 "Groups forward index allocation to the
// parent so that all siblings share a global space" and §4.8's
// "dispatches to the appropriate child (the child that owns the first
// operand)". Callers needing Input/Constant/Output nodes (which have no
// pre-existing operand to dispatch on) should build directly on the
// intended child Dag instead.
func (g *Group) MakeNode(k OpKind, operands ...*Node) (*Node, error) {
	if len(operands) == 0 {
		return nil, errs.E(errs.OperandDagMismatch, "MakeNode on a group requires at least one operand to dispatch on")
	}
	owner, ok := g.OwnerOf(operands[0].index)
	if !ok {
		return nil, errs.E(errs.OperandDagMismatch, "operand %d is not owned by any child of group %q", operands[0].index, g.Name)
	}
	n := owner.newNode(k)
	for _, o := range operands {
		ownerOfOperand, ok := g.OwnerOf(o.index)
		if !ok || ownerOfOperand != owner {
			// Each child Dag owns its own node arena and use/def edges;
			// an operation may only combine operands that live in the
			// same arena. The group-level invariant that operands may
			// come from "child DAGs of the same group" is satisfied at
			// the signature boundary (set_input/set_output cross sub-
			// DAGs), not by individual operation nodes spanning arenas.
			return nil, errs.E(errs.OperandDagMismatch, "operand %d does not belong to the same child dag as the group node being built", o.index)
		}
		owner.addOperand(n, o.index)
	}
	if owner.NextIndex() > g.nextIndex {
		g.nextIndex = owner.NextIndex()
	}
	return n, nil
}
