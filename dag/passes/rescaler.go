package passes

import "github.com/fhegraph/hedag/dag"

// Rescaler is P6: the "eager waterline" pass, CKKS only. It tracks each
// node's current scale and keeps it bounded by rescaling after every
// multiplication and by scale-matching before every addition.
func Rescaler(ctx *Context) {
	if ctx.Family != FamilyCKKS {
		return
	}
	d := ctx.D
	waterline := d.DefaultScale
	threshold := waterline + minSourceScale(d, ctx)

	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		switch n.Kind() {
		case dag.OpMul:
			ops := n.Operands()
			scale := ctx.Scale.At(ops[0]) + ctx.Scale.At(ops[1])
			ctx.Scale.Set(n.Index(), scale)
			rescaleDown(d, ctx, n, waterline, threshold)
		case dag.OpAdd, dag.OpSub:
			matchAddendScales(d, ctx, n)
		default:
			if len(n.Operands()) == 0 {
				return
			}
			m := ctx.Scale.At(n.Operands()[0])
			for _, o := range n.Operands()[1:] {
				if s := ctx.Scale.At(o); s > m {
					m = s
				}
			}
			ctx.Scale.Set(n.Index(), m)
		}
	})
}

// rescaleDown inserts a chain of Rescale nodes atop n, one per
// DefaultScale-bits drop, while n's accumulated scale still meets
// threshold (the waterline plus the smallest scale any leaf enters the
// graph at).
func rescaleDown(d *dag.Dag, ctx *Context, n *dag.Node, waterline, threshold uint32) {
	cur := n
	for ctx.Scale.At(cur.Index()) >= threshold {
		r := d.MakeRescale(cur, waterline)
		ctx.Scale.Set(r.Index(), ctx.Scale.At(cur.Index())-waterline)
		ctx.Type.Set(r.Index(), ctx.Type.At(cur.Index()))
		replaceUsesExcept(d, cur.Index(), r.Index())
		cur = r
	}
}

// matchAddendScales raises the scale of any cipher addend that is
// strictly below the addition's max scale by multiplying it with a
// uniform constant 1 encoded at the missing scale delta, since
// multiplying by an encoded 1 scales up the ciphertext without
// changing its plaintext value.
func matchAddendScales(d *dag.Dag, ctx *Context, n *dag.Node) {
	ops := n.Operands()
	maxScale := ctx.Scale.At(ops[0])
	for _, o := range ops[1:] {
		if s := ctx.Scale.At(o); s > maxScale {
			maxScale = s
		}
	}
	for _, o := range ops {
		if ctx.Type.At(o) != dag.Cipher {
			continue
		}
		s := ctx.Scale.At(o)
		if s >= maxScale {
			continue
		}
		one := d.MakeDenseConstant(dag.NewDenseConst([]float64{1}))
		ctx.Type.Set(one.Index(), dag.Raw)
		ctx.Scale.Set(one.Index(), maxScale-s)
		up := d.MakeBinary(dag.OpMul, d.Node(o), one)
		ctx.Type.Set(up.Index(), dag.Cipher)
		ctx.Scale.Set(up.Index(), maxScale)
		d.ReplaceOperand(n, o, up.Index())
	}
	ctx.Scale.Set(n.Index(), maxScale)
}

func minSourceScale(d *dag.Dag, ctx *Context) uint32 {
	var min uint32
	first := true
	for idx := range d.Sources() {
		s := ctx.Scale.At(idx)
		if first || s < min {
			min = s
			first = false
		}
	}
	if first {
		return d.DefaultScale
	}
	return min
}
