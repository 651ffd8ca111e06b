package dag

import (
	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/errs"
)

// BackendKind names the scheme/library decision a Dag has committed to
// after the scheme dispatcher (C7) has run. Declared here rather than
// imported from the backend package to avoid a dag -> backend import
// cycle (backend adapters themselves operate over dag.Node attributes).
type BackendKind uint8

const (
	BackendUndecided BackendKind = iota
	BackendSealCKKS
	BackendOpenFHECKKS
	BackendSealBFV
	BackendOpenFHEBFV
	BackendSmallInt
)

func (b BackendKind) String() string {
	switch b {
	case BackendSealCKKS:
		return "SealCKKS"
	case BackendOpenFHECKKS:
		return "OpenFHECKKS"
	case BackendSealBFV:
		return "SealBFV"
	case BackendOpenFHEBFV:
		return "OpenFHEBFV"
	case BackendSmallInt:
		return "SmallInt"
	default:
		return "Undecided"
	}
}

// SerializeParams is the bitset of six flags controlling which
// sub-messages a Dag emits when serialized (C9, §4.7).
type SerializeParams struct {
	NodeInfo          bool
	GenkeyInfo        bool
	Signature         bool
	ExecutionContext  bool
	EncryptionContext bool
	DecryptionContext bool
}

// AllSerializeParams returns the bitset with every flag set, used by
// the round-trip test property in §8.
func AllSerializeParams() SerializeParams {
	return SerializeParams{true, true, true, true, true, true}
}

// Dag is a directed acyclic graph of typed operation Nodes plus the
// session-scoped compilation state threaded through the passes of §4.3.
type Dag struct {
	Name string

	slots int

	nextIndex      NodeIndex
	minIndexMark   NodeIndex
	hasMinIndex    bool
	nodes          []*Node
	registeredMaps []nodeMapBase

	sources map[NodeIndex]struct{}
	sinks   map[NodeIndex]struct{}

	inputs  map[string]NodeIndex
	outputs map[string]NodeIndex

	// exprRetain holds nodes returned by the overloaded-operator surface
	// that have not yet been wired into an output, so they are not
	// garbage-collected as unused subgraphs between construction steps.
	// In this arena model nodes only die when the Dag itself is
	// discarded or a CleanNode pass explicitly drops them, so this map
	// is a no-op retention aid kept for parity with the teacher's
	// lifecycle story rather than a GC necessity.
	exprRetain map[NodeIndex]struct{}

	DefaultScale          uint32
	BootstrapEnabled      bool
	AfterReductionDepth   int
	Decision              BackendKind
	Serialize             SerializeParams

	HasInt64  bool
	HasDouble bool
	ShortInt  bool

	// group is set when this Dag is a child of a DagGroup; node index
	// allocation and makeNode dispatch are forwarded to the group.
	group *Group

	cfg config.Config
}

// New builds a standalone Dag. slots must be a non-zero power of two.
func New(name string, slots int) (*Dag, error) {
	if slots <= 0 || slots&(slots-1) != 0 {
		return nil, errs.E(errs.BadSlotCount, "slot count %d is not a non-zero power of two", slots)
	}
	cfg := config.Default()
	d := &Dag{
		Name:         name,
		slots:        slots,
		sources:      make(map[NodeIndex]struct{}),
		sinks:        make(map[NodeIndex]struct{}),
		inputs:       make(map[string]NodeIndex),
		outputs:      make(map[string]NodeIndex),
		exprRetain:   make(map[NodeIndex]struct{}),
		DefaultScale: cfg.DefaultScale,
		cfg:          cfg,
	}
	return d, nil
}

// Slots returns the Dag's slot count (power of two).
func (d *Dag) Slots() int { return d.slots }

// SetSlots forces the slot count. Parameter selection (§4.4) does not
// call it: params.Select raises the ring degree to fit the requested
// slot count instead.
func (d *Dag) SetSlots(n int) { d.slots = n }

// NextIndex returns the counter that the next allocateIndex call will
// assign, needed by DagGroup.AddChild's overlap check.
func (d *Dag) NextIndex() NodeIndex { return d.nextIndex }

// MinNodeIndex returns the smallest index ever allocated in this Dag,
// or false if no node has been created yet (EmptyChildDag).
func (d *Dag) MinNodeIndex() (NodeIndex, bool) { return d.minIndexMark, d.hasMinIndex }

// SetNextNodeIndex forces the next-index counter. Callers must do this
// before constructing a new Dag that is about to be added as a group's
// child, per the DagGroup invariant in §4.8.
func (d *Dag) SetNextNodeIndex(n NodeIndex) { d.nextIndex = n }

func (d *Dag) registerMap(m nodeMapBase) {
	m.resize(int(d.nextIndex))
	d.registeredMaps = append(d.registeredMaps, m)
}

func (d *Dag) unregisterMap(m nodeMapBase) {
	for i, x := range d.registeredMaps {
		if x == m {
			d.registeredMaps = append(d.registeredMaps[:i], d.registeredMaps[i+1:]...)
			return
		}
	}
}

// allocateIndex assigns the next NodeIndex, advances the watermark and
// resizes every registered NodeMap before returning, so "NodeMap.len >=
// n.index+1" holds for every map at every point after this call.
func (d *Dag) allocateIndex() NodeIndex {
	idx := d.nextIndex
	if !d.hasMinIndex {
		d.minIndexMark = idx
		d.hasMinIndex = true
	}
	d.nextIndex++
	for _, m := range d.registeredMaps {
		m.resize(int(d.nextIndex))
	}
	if idx >= NodeIndex(len(d.nodes)) {
		grown := make([]*Node, d.nextIndex)
		copy(grown, d.nodes)
		d.nodes = grown
	}
	return idx
}

// newNode allocates a bare node of kind k, registers it as both a
// source and a sink (no operands or uses yet) and stores it in the
// arena.
func (d *Dag) newNode(k OpKind) *Node {
	idx := d.allocateIndex()
	n := &Node{index: idx, kind: k, init: true}
	d.nodes[idx] = n
	d.sources[idx] = struct{}{}
	d.sinks[idx] = struct{}{}
	d.exprRetain[idx] = struct{}{}
	return n
}

// Node looks up a node by index.
func (d *Dag) Node(idx NodeIndex) *Node { return d.nodes[idx] }

// NumNodes returns the number of indices allocated so far (including
// any later dropped by a cleanup pass: those still occupy an index).
func (d *Dag) NumNodes() int { return int(d.nextIndex) }

// addOperand wires src as the next operand of n: appends the edge,
// clears n's source status (it now has an operand) and clears src's
// sink status (it is now used).
func (d *Dag) addOperand(n *Node, src NodeIndex) {
	n.operands = append(n.operands, src)
	delete(d.sources, n.index)
	d.nodes[src].uses = append(d.nodes[src].uses, n.index)
	delete(d.sinks, src)
}

// ReplaceOperand swaps the edge n->old for n->replacement, updating use
// lists on both sides of the change. Used by rewriting passes that
// substitute a node in place (constant folding, encode insertion...).
func (d *Dag) ReplaceOperand(n *Node, oldIdx, newIdx NodeIndex) {
	count := 0
	for i, op := range n.operands {
		if op == oldIdx {
			n.operands[i] = newIdx
			count++
		}
	}
	// n may reference oldIdx more than once (e.g. Mul(x, x)): drop and add
	// as many use-edges as operand occurrences, not just one.
	for i := 0; i < count; i++ {
		d.nodes[oldIdx].uses = removeIndex(d.nodes[oldIdx].uses, n.index)
	}
	if len(d.nodes[oldIdx].uses) == 0 {
		d.sinks[oldIdx] = struct{}{}
	}
	for i := 0; i < count; i++ {
		d.nodes[newIdx].uses = append(d.nodes[newIdx].uses, n.index)
	}
	delete(d.sinks, newIdx)
}

// ReplaceAllUses rewires every current user of oldIdx to use newIdx
// instead, mirroring the "replace all uses" step of ConstantFold (P3).
func (d *Dag) ReplaceAllUses(oldIdx, newIdx NodeIndex) {
	old := d.nodes[oldIdx]
	users := append([]NodeIndex(nil), old.uses...)
	for _, u := range users {
		d.ReplaceOperand(d.nodes[u], oldIdx, newIdx)
	}
}

// AbsorbInto merges n into its sole user use, per Reduction (P4): use's
// reference to n is dropped and n's own operands are appended to use in
// its place, with their use-edges repointed from n to use. n is left
// with no operands and no uses and is removed from the arena; it must
// not be referenced again after this call.
func (d *Dag) AbsorbInto(use, n *Node) {
	use.operands = removeIndex(use.operands, n.index)
	n.uses = removeIndex(n.uses, use.index)
	for _, op := range n.operands {
		use.operands = append(use.operands, op)
		d.nodes[op].uses = removeIndex(d.nodes[op].uses, n.index)
		d.nodes[op].uses = append(d.nodes[op].uses, use.index)
	}
	n.operands = nil
	delete(d.sources, n.index)
	delete(d.sinks, n.index)
	delete(d.exprRetain, n.index)
	d.nodes[n.index] = nil
}

// Sources returns the current source-node index set (no operands).
func (d *Dag) Sources() map[NodeIndex]struct{} { return d.sources }

// Sinks returns the current sink-node index set (no uses).
func (d *Dag) Sinks() map[NodeIndex]struct{} { return d.sinks }

// Inputs returns the name -> node index map of declared inputs.
func (d *Dag) Inputs() map[string]NodeIndex { return d.inputs }

// Outputs returns the name -> node index map of declared outputs.
func (d *Dag) Outputs() map[string]NodeIndex { return d.outputs }

// DropNode removes n from the sources/sinks sets and clears its
// operand/use edges on both sides, used by CleanNode (P1) to delete a
// zero-use interior node. It does not reclaim the index: the arena slot
// stays nil.
func (d *Dag) DropNode(idx NodeIndex) {
	n := d.nodes[idx]
	for _, op := range n.operands {
		d.nodes[op].uses = removeIndex(d.nodes[op].uses, idx)
		if len(d.nodes[op].uses) == 0 {
			d.sinks[op] = struct{}{}
		}
	}
	delete(d.sources, idx)
	delete(d.sinks, idx)
	delete(d.exprRetain, idx)
	d.nodes[idx] = nil
}

// Close tears the Dag down in the order the invariants section of §3
// describes: expression retention first, then sources/sinks/input/
// output maps, then node maps. Node back-pointers are not used in this
// arena model (nodes hold no pointer to their Dag), so there is no
// partial-teardown hazard to guard with an init flag at the Dag level;
// Node.init exists only to make that invariant explicit and checkable.
func (d *Dag) Close() {
	d.exprRetain = nil
	d.sources = nil
	d.sinks = nil
	d.inputs = nil
	d.outputs = nil
	for _, n := range d.nodes {
		if n != nil {
			n.init = false
		}
	}
	d.nodes = nil
	d.registeredMaps = nil
}
