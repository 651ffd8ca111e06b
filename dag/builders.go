package dag

import "github.com/fhegraph/hedag/errs"

// MakeDenseConstant creates a Constant node over a dense or sparse f64
// vector and marks the Dag as using doubles (steers scheme selection
// towards CKKS in the dispatcher, §4.5).
func (d *Dag) MakeDenseConstant(v ConstValue[float64]) *Node {
	n := d.newNode(OpConstant)
	n.attrs.SetConstF64(v)
	n.attrs.SetTypeAttr(Raw)
	d.HasDouble = true
	return n
}

// MakeInt64DenseConstant creates a Constant node over an i64 vector and
// marks the Dag as using int64 (steers scheme selection towards BFV).
func (d *Dag) MakeInt64DenseConstant(v ConstValue[int64]) *Node {
	n := d.newNode(OpConstant)
	n.attrs.SetConstI64(v)
	n.attrs.SetTypeAttr(Raw)
	d.HasInt64 = true
	return n
}

// MakeInput declares a named input of the given runtime type and
// registers it in the Dag's input map. Duplicate names are rejected:
// the DagGroup invariant additionally requires uniqueness across all
// children sharing a group.
func (d *Dag) MakeInput(name string, t Type) (*Node, error) {
	if _, exists := d.inputs[name]; exists {
		return nil, errs.E(errs.DuplicateInputName, "input %q already declared on dag %q", name, d.Name)
	}
	n := d.newNode(OpInput)
	n.attrs.SetTypeAttr(t)
	n.attrs.SetU32(AttrEncodeAtScale, d.DefaultScale)
	d.inputs[name] = n.index
	return n, nil
}

// MakeOutput creates an Output node with src as its sole operand and
// registers it under name. A name already in use is an error: the
// caller must supply a fresh output name per call.
func (d *Dag) MakeOutput(name string, src *Node) (*Node, error) {
	if _, exists := d.outputs[name]; exists {
		return nil, errs.E(errs.OutputAlreadySet, "output %q already set on dag %q", name, d.Name)
	}
	n := d.newNode(OpOutput)
	d.addOperand(n, src.index)
	d.outputs[name] = n.index
	return n, nil
}

// MakeUnary creates a single-operand node (Negate, Relinearize,
// ModSwitch, Encode...) over src.
func (d *Dag) MakeUnary(k OpKind, src *Node) *Node {
	n := d.newNode(k)
	d.addOperand(n, src.index)
	return n
}

// MakeBinary creates a two-operand node (Add, Sub, Mul, Div) over lhs
// and rhs, in that operand order.
func (d *Dag) MakeBinary(k OpKind, lhs, rhs *Node) *Node {
	n := d.newNode(k)
	d.addOperand(n, lhs.index)
	d.addOperand(n, rhs.index)
	if k == OpDiv {
		d.ShortInt = true
	}
	return n
}

// MakeNAry creates a many-operand node of an associative kind (Add or
// Mul). The passes do not call it: Reduction (P4) flattens chains by
// absorbing operands and ReductionLogExpander (P5) rebuilds with
// MakeBinary; surface callers should prefer MakeBinary as well.
func (d *Dag) MakeNAry(k OpKind, operands []*Node) *Node {
	n := d.newNode(k)
	for _, o := range operands {
		d.addOperand(n, o.index)
	}
	return n
}

// MakeLeftRotation creates a RotateLeftConst node with Rotation = k.
// Non-trivial k is legal directly; the IR does not require rotation
// decomposition.
func (d *Dag) MakeLeftRotation(src *Node, k uint32) *Node {
	n := d.MakeUnary(OpRotateLeftConst, src)
	n.attrs.SetU32(AttrRotation, k)
	return n
}

// MakeRightRotation creates a RotateRightConst node with Rotation = k.
func (d *Dag) MakeRightRotation(src *Node, k uint32) *Node {
	n := d.MakeUnary(OpRotateRightConst, src)
	n.attrs.SetU32(AttrRotation, k)
	return n
}

// MakeRescale creates a Rescale node with RescaleDivisor = divisorBits.
func (d *Dag) MakeRescale(src *Node, divisorBits uint32) *Node {
	n := d.MakeUnary(OpRescale, src)
	n.attrs.SetU32(AttrRescaleDivisor, divisorBits)
	return n
}

// MakeModSwitch creates a ModSwitch node over src.
func (d *Dag) MakeModSwitch(src *Node) *Node {
	return d.MakeUnary(OpModSwitch, src)
}

// MakeRelinearize creates a Relinearize node over src.
func (d *Dag) MakeRelinearize(src *Node) *Node {
	return d.MakeUnary(OpRelinearize, src)
}

// MakeEncode creates an Encode node over src with the given scale and
// level, marking its type Plain (§4.3 P7).
func (d *Dag) MakeEncode(src *Node, scale, level uint32) *Node {
	n := d.MakeUnary(OpEncode, src)
	n.attrs.SetTypeAttr(Plain)
	n.attrs.SetU32(AttrEncodeAtScale, scale)
	n.attrs.SetU32(AttrEncodeAtLevel, level)
	return n
}
