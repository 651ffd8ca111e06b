package passes

import "github.com/fhegraph/hedag/dag"

type number interface {
	~float64 | ~int64
}

// ConstantFold is P3: a forward, scheme-typed pass. For a node whose
// every operand is Constant, it materializes the operation on the
// expanded constant vectors and substitutes a new Constant node for the
// whole subexpression, replacing every use of the original node.
//
// The new node's EncodeAtScale is max(operand scales) for Add/Sub and
// the sum of operand scales for Mul, so later passes (Rescaler,
// EncodeInserter) see a scale-consistent constant even though no real
// rescale ever touched it.
func ConstantFold(ctx *Context) {
	d := ctx.D
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		switch n.Kind() {
		case dag.OpConstant:
			ctx.Scale.Set(n.Index(), scaleOf(n, d.DefaultScale))
			return
		case dag.OpInput:
			s, _ := n.Attrs().U32(dag.AttrEncodeAtScale)
			if s == 0 {
				s = d.DefaultScale
			}
			ctx.Scale.Set(n.Index(), s)
			return
		}
		if !allConstant(d, n) {
			return
		}
		folded, scale, ok := foldNode(d, n, ctx)
		if !ok {
			return
		}
		ctx.Scale.Set(folded.Index(), scale)
		d.ReplaceAllUses(n.Index(), folded.Index())
	})
}

func scaleOf(n *dag.Node, fallback uint32) uint32 {
	if s, ok := n.Attrs().U32(dag.AttrEncodeAtScale); ok && s != 0 {
		return s
	}
	return fallback
}

func allConstant(d *dag.Dag, n *dag.Node) bool {
	if len(n.Operands()) == 0 {
		return false
	}
	for _, o := range n.Operands() {
		if d.Node(o).Kind() != dag.OpConstant {
			return false
		}
	}
	return true
}

func foldNode(d *dag.Dag, n *dag.Node, ctx *Context) (*dag.Node, uint32, bool) {
	if cv, ok := d.Node(n.Operands()[0]).Attrs().ConstF64(); ok {
		_ = cv
		return foldTyped[float64](d, n, ctx, d.MakeDenseConstant, getF64, func(v []float64) dag.ConstValue[float64] { return dag.NewDenseConst(v) })
	}
	if _, ok := d.Node(n.Operands()[0]).Attrs().ConstI64(); ok {
		return foldTyped[int64](d, n, ctx, d.MakeInt64DenseConstant, getI64, func(v []int64) dag.ConstValue[int64] { return dag.NewDenseConst(v) })
	}
	return nil, 0, false
}

func getF64(n *dag.Node) (dag.ConstValue[float64], bool) { return n.Attrs().ConstF64() }
func getI64(n *dag.Node) (dag.ConstValue[int64], bool)   { return n.Attrs().ConstI64() }

func foldTyped[T number](
	d *dag.Dag,
	n *dag.Node,
	ctx *Context,
	makeConst func(dag.ConstValue[T]) *dag.Node,
	get func(*dag.Node) (dag.ConstValue[T], bool),
	wrap func([]T) dag.ConstValue[T],
) (*dag.Node, uint32, bool) {
	slots := d.Slots()
	operandVecs := make([][]T, len(n.Operands()))
	operandScales := make([]uint32, len(n.Operands()))
	for i, o := range n.Operands() {
		cv, ok := get(d.Node(o))
		if !ok {
			return nil, 0, false
		}
		vec, err := cv.ExpandTo(slots)
		if err != nil {
			return nil, 0, false
		}
		operandVecs[i] = vec
		operandScales[i] = ctx.Scale.At(o)
	}

	var result []T
	var scale uint32
	switch n.Kind() {
	case dag.OpAdd:
		result = elementwise(operandVecs, slots, func(a, b T) T { return a + b })
		scale = maxU32(operandScales)
	case dag.OpSub:
		result = elementwise(operandVecs, slots, func(a, b T) T { return a - b })
		scale = maxU32(operandScales)
	case dag.OpMul:
		result = elementwise(operandVecs, slots, func(a, b T) T { return a * b })
		scale = sumU32(operandScales)
	case dag.OpNegate:
		result = make([]T, slots)
		for i, v := range operandVecs[0] {
			result[i] = -v
		}
		scale = operandScales[0]
	case dag.OpRotateLeftConst:
		k, _ := n.Attrs().U32(dag.AttrRotation)
		result = rotate(operandVecs[0], int(k))
		scale = operandScales[0]
	case dag.OpRotateRightConst:
		k, _ := n.Attrs().U32(dag.AttrRotation)
		result = rotate(operandVecs[0], -int(k))
		scale = operandScales[0]
	default:
		return nil, 0, false
	}

	folded := makeConst(wrap(result))
	folded.Attrs().SetU32(dag.AttrEncodeAtScale, scale)
	return folded, scale, true
}

func elementwise[T number](vecs [][]T, slots int, op func(a, b T) T) []T {
	out := append([]T(nil), vecs[0]...)
	for _, v := range vecs[1:] {
		for i := 0; i < slots; i++ {
			out[i] = op(out[i], v[i])
		}
	}
	return out
}

func rotate[T any](v []T, by int) []T {
	n := len(v)
	if n == 0 {
		return v
	}
	by = ((by % n) + n) % n
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = v[(i+by)%n]
	}
	return out
}

func maxU32(vs []uint32) uint32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumU32(vs []uint32) uint32 {
	var s uint32
	for _, v := range vs {
		s += v
	}
	return s
}
