// Package exec implements the scheme-parametric executor (C8, §4.6): a
// single forward pass over a compiled Dag that drives one
// backend.Backend[T] instance to encrypt, evaluate and decrypt a
// program, dispatching each Node's OpKind to the matching Backend
// method. It is "scheme-parametric" in the same sense dag/passes is
// Dag-generic: the opcode dispatch is identical whichever of the five
// concrete adapters backend.ForFloat/ForInt hands back, only the element type
// T (float64 or int64) and the backend's own method bodies differ.
package exec

import (
	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
	"github.com/fhegraph/hedag/errs"
)

// maxMultDepthNoBoot is the post-reduction multiplicative depth at
// which the executor bootstraps a ciphertext before letting it
// participate in another cipher x cipher multiplication, per §4.6. It
// only ever fires on the OpenFHECKKS backend, the only adapter with a
// loaded bootstrapper.
const maxMultDepthNoBoot = 15

// Executor drives be over one compiled Dag at a time. An Executor that
// has faulted (hit an error mid-run) refuses further Run calls until
// reset, since the Dag's NodeMap-held intermediate ciphertexts are left
// in an undefined state by a partial pass.
type Executor[T any] struct {
	be      backend.Backend[T]
	faulted bool
}

// New builds an Executor bound to be. The caller is expected to have
// already called be.GenKeys and have a backend.KeySet ready for Run.
func New[T any](be backend.Backend[T]) *Executor[T] {
	return &Executor[T]{be: be}
}

// Reset clears the faulted flag, allowing the Executor to run again.
// Callers should only do this once they know the condition that faulted
// the previous run no longer applies (e.g. a fresh Dag).
func (e *Executor[T]) Reset() { e.faulted = false }

// Run evaluates d's operations against inputs (one Operand[T] per
// declared input name, usually Cipher) and returns one Operand[T] per
// declared output name. ctx must be the same *passes.Context the
// rewriting pipeline populated for d (Transpile leaves it open;
// callers keep it alive through execution so Rescale/Rotation/Encode
// attributes and the bootstrapping depth gate can be read).
func (e *Executor[T]) Run(d *dag.Dag, ctx *passes.Context, ks backend.KeySet, inputs map[string]backend.Operand[T]) (map[string]backend.Operand[T], error) {
	if e.faulted {
		return nil, errs.E(errs.ExecutorFaulted, "executor %q: previous run faulted; build a fresh Executor", d.Name)
	}

	values := dag.NewNodeMap[backend.Operand[T]](d)
	defer values.Close()
	remaining := dag.NewNodeMap[int](d)
	defer remaining.Close()
	mulDepths := dag.NewNodeMapOptional[int](d)
	defer mulDepths.Close()
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		remaining.Set(n.Index(), len(n.Uses()))
	})

	indexToInput := make(map[dag.NodeIndex]string, len(d.Inputs()))
	for name, idx := range d.Inputs() {
		indexToInput[idx] = name
	}
	indexToOutput := make(map[dag.NodeIndex]string, len(d.Outputs()))
	for name, idx := range d.Outputs() {
		indexToOutput[idx] = name
	}

	outputs := make(map[string]backend.Operand[T], len(d.Outputs()))
	bootstrapped := dag.NewNodeMapOptional[bool](d)
	defer bootstrapped.Close()

	var fatal error
	fail := func(err error) {
		if fatal == nil {
			fatal = err
		}
	}

	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		if fatal != nil {
			return
		}

		switch n.Kind() {
		case dag.OpInput:
			name := indexToInput[n.Index()]
			op, ok := inputs[name]
			if !ok {
				fail(errs.E(errs.UnknownInputName, "executor: no value supplied for input %q", name))
				return
			}
			values.Set(n.Index(), op)

		case dag.OpConstant:
			op, err := constantOperand[T](n, d.Slots())
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), op)

		case dag.OpEncode:
			raw := values.At(n.Operands()[0])
			scale, _ := n.Attrs().U32(dag.AttrEncodeAtScale)
			level, _ := n.Attrs().U32(dag.AttrEncodeAtLevel)
			pt, err := e.be.Encode(raw.Raw, uint64(scale), int(level))
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Plain: &pt})

		case dag.OpAdd, dag.OpSub, dag.OpMul, dag.OpDiv:
			ops := n.Operands()
			x, y := values.At(ops[0]), values.At(ops[1])
			var ct backend.Cipher
			var err error
			switch n.Kind() {
			case dag.OpAdd:
				ct, err = e.be.Add(x, y)
			case dag.OpSub:
				ct, err = e.be.Sub(x, y)
			case dag.OpMul:
				ct, err = e.be.Mul(x, y)
			case dag.OpDiv:
				ct, err = e.be.Div(x, y)
			}
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})
			if n.Kind() == dag.OpMul && ctx.Family == passes.FamilyCKKS {
				e.maybeBootstrap(d, ctx, n, values, bootstrapped, mulDepths, fail)
			}

		case dag.OpNegate:
			in := values.At(n.Operands()[0])
			ct, err := e.be.Negate(*in.Cipher)
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})

		case dag.OpRotateLeftConst, dag.OpRotateRightConst:
			in := values.At(n.Operands()[0])
			k, _ := n.Attrs().U32(dag.AttrRotation)
			var ct backend.Cipher
			var err error
			if n.Kind() == dag.OpRotateLeftConst {
				ct, err = e.be.RotateLeft(*in.Cipher, int(k))
			} else {
				ct, err = e.be.RotateRight(*in.Cipher, int(k))
			}
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})

		case dag.OpRelinearize:
			in := values.At(n.Operands()[0])
			ct, err := e.be.Relinearize(*in.Cipher)
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})

		case dag.OpRescale:
			in := values.At(n.Operands()[0])
			divisor, _ := n.Attrs().U32(dag.AttrRescaleDivisor)
			ct, err := e.be.Rescale(*in.Cipher, int(divisor))
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})

		case dag.OpModSwitch:
			in := values.At(n.Operands()[0])
			ct, err := e.be.ModSwitch(*in.Cipher)
			if err != nil {
				fail(err)
				return
			}
			values.Set(n.Index(), backend.Operand[T]{Cipher: &ct})

		case dag.OpOutput:
			outputs[indexToOutput[n.Index()]] = values.At(n.Operands()[0])

		default:
			fail(errs.E(errs.UnknownOpcode, "executor: node %d has unhandled opcode %s", n.Index(), n.Kind()))
			return
		}

		e.release(n, values, remaining)
	})

	if fatal != nil {
		e.faulted = true
		return nil, fatal
	}
	return outputs, nil
}

// maybeBootstrap refreshes n's ciphertext once the path leading to it
// has crossed maxMultDepthNoBoot cipher x cipher multiplications, or is
// within two levels of the graph's final depth, per §4.6's two
// bootstrapping triggers. It is a no-op (via Bootstrap's own
// unsupported error, swallowed here) on every backend but
// OpenFHECKKS, since that is the only adapter the session layer loads
// a bootstrapper into.
func (e *Executor[T]) maybeBootstrap(d *dag.Dag, ctx *passes.Context, n *dag.Node, values *dag.NodeMap[backend.Operand[T]], bootstrapped *dag.NodeMapOptional[bool], mulDepths *dag.NodeMapOptional[int], fail func(error)) {
	if !d.BootstrapEnabled {
		return
	}
	op := values.At(n.Index())
	depth := approximateDepth(d, n, mulDepths)
	if depth != maxMultDepthNoBoot && depth != d.AfterReductionDepth-2 {
		return
	}
	if done, _ := bootstrapped.At(n.Index()); done {
		return
	}
	out, err := e.be.Bootstrap(*op.Cipher)
	if err != nil {
		if errs.As(err, errs.OpenFHEBootstrapUnavailable) {
			return
		}
		fail(err)
		return
	}
	values.Set(n.Index(), backend.Operand[T]{Cipher: &out})
	bootstrapped.Set(n.Index(), true)
}

// approximateDepth walks n's operands once to find the deepest already
// recorded depth; MultDepthCount (P11) has already computed the
// graph-wide AfterReductionDepth, so this only needs a cheap local
// estimate for the "crossed threshold" check, not a second full pass.
// cache memoizes per-node results across the whole Run call, since a
// shared ancestor under a diamond of fan-in would otherwise be re-walked
// once per path reaching it.
func approximateDepth(d *dag.Dag, n *dag.Node, cache *dag.NodeMapOptional[int]) int {
	max := 0
	for _, op := range n.Operands() {
		if v := countMulsUpTo(d, op, cache); v > max {
			max = v
		}
	}
	return max + 1
}

func countMulsUpTo(d *dag.Dag, idx dag.NodeIndex, cache *dag.NodeMapOptional[int]) int {
	if v, ok := cache.At(idx); ok {
		return v
	}
	n := d.Node(idx)
	if n == nil {
		return 0
	}
	max := 0
	for _, op := range n.Operands() {
		if v := countMulsUpTo(d, op, cache); v > max {
			max = v
		}
	}
	if n.Kind() == dag.OpMul {
		max++
	}
	cache.Set(idx, max)
	return max
}

// release drops a node's stored operand once every consumer has run,
// freeing the backend-held ciphertext/plaintext buffer it wraps (the
// out-degree bookkeeping named in §4.6; large ciphertexts are the
// dominant memory cost of a long-running executor).
func (e *Executor[T]) release(n *dag.Node, values *dag.NodeMap[backend.Operand[T]], remaining *dag.NodeMap[int]) {
	for _, op := range n.Operands() {
		left := remaining.At(op) - 1
		remaining.Set(op, left)
		if left <= 0 {
			values.Set(op, backend.Operand[T]{})
		}
	}
}

// constantOperand extracts n's constant vector, expanded to slots, as
// a Raw Operand[T]. T is always float64 or int64 here: the surface
// layer never allows any other element type into a Dag (dag.builders
// only exposes MakeDenseConstant for float64 and
// MakeInt64DenseConstant for int64).
func constantOperand[T any](n *dag.Node, slots int) (backend.Operand[T], error) {
	var zero T
	switch any(zero).(type) {
	case float64:
		c, ok := n.Attrs().ConstF64()
		if !ok {
			return backend.Operand[T]{}, errs.E(errs.InvalidAttributeType, "executor: constant node %d has no float64 value", n.Index())
		}
		v, err := c.ExpandTo(slots)
		if err != nil {
			return backend.Operand[T]{}, err
		}
		return backend.Operand[T]{Raw: any(v).([]T)}, nil
	case int64:
		c, ok := n.Attrs().ConstI64()
		if !ok {
			return backend.Operand[T]{}, errs.E(errs.InvalidAttributeType, "executor: constant node %d has no int64 value", n.Index())
		}
		v, err := c.ExpandTo(slots)
		if err != nil {
			return backend.Operand[T]{}, err
		}
		return backend.Operand[T]{Raw: any(v).([]T)}, nil
	default:
		return backend.Operand[T]{}, errs.E(errs.InvalidAttributeType, "executor: unsupported element type for constant node %d", n.Index())
	}
}
