// Package passes implements the rewriting passes of §4.3: a pipeline of
// plain functions over a *dag.Dag or a *Context, returning nothing and
// panicking via errs.E on a failed check, run in a fixed order by
// Transpile, following the design note's "model each pass as a plain
// function" recommendation over a virtual Pass hierarchy.
package passes

import "github.com/fhegraph/hedag/dag"

// SchemeFamily is the coarse scheme family a Dag implies from its
// construction-time flags (HasDouble/HasInt64/ShortInt), used to decide
// which scheme-typed passes (Rescaler, LazyRelinearizer, ModSwitcher)
// apply. The final library choice (SEAL vs OpenFHE) is made later by
// the scheme dispatcher (§4.5); this is only the float/integer/small-int
// split the rewriting passes themselves care about.
type SchemeFamily uint8

const (
	FamilyCKKS SchemeFamily = iota
	FamilyInteger
	FamilySmallInt
)

// Family classifies d per the decision table of §4.5, steps 1-3 (the
// backend-library choice in step 2/3 is irrelevant to the passes).
func Family(d *dag.Dag) SchemeFamily {
	switch {
	case d.ShortInt:
		return FamilySmallInt
	case d.HasInt64:
		return FamilyInteger
	default:
		return FamilyCKKS
	}
}

// Context carries the per-node working state threaded through the
// rewriting pipeline: a pass reads and updates it via NodeMaps rather
// than by mutating Node attributes, except where the specification
// names an attribute explicitly (EncodeAtScale, EncodeAtLevel,
// RescaleDivisor...).
type Context struct {
	D *dag.Dag

	// Scale is each node's current CKKS scale in bits, maintained by
	// ConstantFold/Rescaler and read by ReductionLogExpander's operand
	// ordering, EncodeInserter and the validators.
	Scale *dag.NodeMap[uint32]

	// Level is each node's current coefficient-modulus level, assigned
	// in reverse by ModSwitcher (§4.3 P9) then flipped to absolute
	// levels; read by the validators and by parameter selection.
	Level *dag.NodeMapOptional[int]

	// Type is each node's propagated runtime Type (Cipher/Plain/Raw),
	// computed by TypeHandler and re-checked after every mutating pass.
	Type *dag.NodeMap[dag.Type]

	// PendingRelin marks the output of a cipher x cipher multiplication
	// that has not yet had an explicit Relinearize node inserted.
	PendingRelin *dag.NodeMapOptional[bool]

	Family SchemeFamily
}

// NewContext allocates a fresh, Dag-registered Context.
func NewContext(d *dag.Dag) *Context {
	return &Context{
		D:            d,
		Scale:        dag.NewNodeMap[uint32](d),
		Level:        dag.NewNodeMapOptional[int](d),
		Type:         dag.NewNodeMap[dag.Type](d),
		PendingRelin: dag.NewNodeMapOptional[bool](d),
		Family:       Family(d),
	}
}

// Close unregisters every NodeMap this Context owns.
func (c *Context) Close() {
	c.Scale.Close()
	c.Level.Close()
	c.Type.Close()
	c.PendingRelin.Close()
}
