package passes

import "github.com/fhegraph/hedag/dag"

// EncodeInserter is P7: a forward pass that inserts an explicit Encode
// node wherever an operation mixes a ciphertext and a raw operand,
// since the backend only ever multiplies/adds a ciphertext against an
// already-encoded plaintext, never against a raw vector directly.
//
// The encode's scale follows the operator: for Add/Sub it matches the
// cipher side (so the addition's scale-matching invariant still holds
// once Rescaler has run); for Mul/Div it is the raw operand's own
// scale, so the product's (or small-int quotient's) scale is the
// expected sum of the two. Div reaches here too: the small-int backend
// still needs its constant operand encoded before it can tell a
// ciphertext-by-ciphertext Div (unsupported) from a
// ciphertext-by-constant one. EncodeAtLevel is left at zero here;
// ModSwitcher (P9) assigns real levels afterward.
func EncodeInserter(ctx *Context) {
	d := ctx.D
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		ops := n.Operands()
		if len(ops) != 2 {
			return
		}
		var cipherIdx, rawIdx int
		switch {
		case ctx.Type.At(ops[0]) == dag.Cipher && ctx.Type.At(ops[1]) == dag.Raw:
			cipherIdx, rawIdx = 0, 1
		case ctx.Type.At(ops[1]) == dag.Cipher && ctx.Type.At(ops[0]) == dag.Raw:
			cipherIdx, rawIdx = 1, 0
		default:
			return
		}

		var scale uint32
		switch n.Kind() {
		case dag.OpAdd, dag.OpSub:
			scale = ctx.Scale.At(ops[cipherIdx])
		case dag.OpMul, dag.OpDiv:
			scale = ctx.Scale.At(ops[rawIdx])
		default:
			return
		}

		enc := d.MakeEncode(d.Node(ops[rawIdx]), scale, 0)
		ctx.Type.Set(enc.Index(), dag.Plain)
		ctx.Scale.Set(enc.Index(), scale)
		d.ReplaceOperand(n, ops[rawIdx], enc.Index())
	})
}
