package session

import (
	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/exec"
	"github.com/fhegraph/hedag/params"
)

// runtime erases the Executor[T]/Backend[T] element-type parameter
// behind a single non-generic interface, so Session can hold "whichever
// of the two families the scheme dispatcher chose" without itself
// becoming generic. Two concrete implementations exist: floatRuntime
// (CKKS family, T = float64) and intRuntime (BFV and small-int family,
// T = int64 — the small-int backend's u8 element type is carried as an
// int64 at this layer and widened/narrowed at the Value
// boundary, see DESIGN.md).
type runtime interface {
	genKeys(p params.Set) (backend.KeySet, error)
	stageInput(ks backend.KeySet, name string, v Value, slots int, scale, level uint32, replace bool) error
	hasInput(name string) bool
	clearInputs()
	run(d *dag.Dag, ctx *passes.Context, ks backend.KeySet) (map[string]Value, error)

	// marshalInput/stageRawInput bridge a staged ciphertext to/from the
	// wire bytes serialize.SaveInput/LoadInput carry (§4.7's Input
	// envelope), used by cross-process handoff (§8 scenario 6).
	marshalInput(name string) ([]byte, uint64, int, error)
	stageRawInput(ks backend.KeySet, name string, data []byte, scale uint64, level int) error
	// marshalOutput exposes the raw ciphertext the last run() produced
	// for name, before it was decoded into a plaintext Value, for the
	// Output wire envelope.
	marshalOutput(name string) ([]byte, uint64, int, bool, error)
	// decryptRaw unmarshals a ciphertext received over the Output wire
	// message and decrypts+decodes it directly, without requiring it to
	// have come from this runtime's own Execute run (§8 scenario 6: a
	// key-only session loading another session's output).
	decryptRaw(ks backend.KeySet, data []byte, scale uint64, level int) (Value, error)

	// marshalSecretKey/unmarshalSecretKey back SaveKeys/LoadKeys's
	// scoped-down form (§6; see DESIGN.md).
	marshalSecretKey(ks backend.KeySet) ([]byte, error)
	unmarshalSecretKey(data []byte) (backend.KeySet, error)
}

func newRuntime(k backend.Kind) (runtime, error) {
	switch k {
	case backend.SealCKKS, backend.OpenFHECKKS:
		be, ok := backend.ForFloat(k)
		if !ok {
			return nil, errs.E(errs.InvalidInputType, "session: no float adapter registered for backend %s", k)
		}
		return &floatRuntime{be: be, exec: exec.New(be), inputs: map[string]backend.Operand[float64]{}}, nil
	case backend.SealBFV, backend.OpenFHEBFV, backend.SmallInt:
		be, ok := backend.ForInt(k)
		if !ok {
			return nil, errs.E(errs.InvalidInputType, "session: no int adapter registered for backend %s", k)
		}
		return &intRuntime{be: be, exec: exec.New(be), inputs: map[string]backend.Operand[int64]{}, smallInt: k == backend.SmallInt}, nil
	default:
		return nil, errs.E(errs.InvalidInputType, "session: unknown backend kind %d", k)
	}
}

type floatRuntime struct {
	be      backend.Backend[float64]
	exec    *exec.Executor[float64]
	inputs  map[string]backend.Operand[float64]
	outputs map[string]backend.Operand[float64]
}

func (r *floatRuntime) genKeys(p params.Set) (backend.KeySet, error) { return r.be.GenKeys(p) }

func (r *floatRuntime) hasInput(name string) bool { _, ok := r.inputs[name]; return ok }

func (r *floatRuntime) clearInputs() { r.inputs = map[string]backend.Operand[float64]{} }

func (r *floatRuntime) stageInput(ks backend.KeySet, name string, v Value, slots int, scale, level uint32, replace bool) error {
	if !replace && r.hasInput(name) {
		return nil
	}
	raw, err := v.asF64Slots(slots)
	if err != nil {
		return err
	}
	pt, err := r.be.Encode(raw, uint64(scale), int(level))
	if err != nil {
		return err
	}
	ct, err := r.be.Encrypt(pt, ks)
	if err != nil {
		return err
	}
	r.inputs[name] = backend.Operand[float64]{Cipher: &ct}
	return nil
}

func (r *floatRuntime) run(d *dag.Dag, ctx *passes.Context, ks backend.KeySet) (map[string]Value, error) {
	out, err := r.exec.Run(d, ctx, ks, r.inputs)
	if err != nil {
		return nil, err
	}
	r.outputs = out
	results := make(map[string]Value, len(out))
	for name, op := range out {
		vec, err := r.decodeOperand(op, ks)
		if err != nil {
			return nil, err
		}
		if len(vec) > d.Slots() {
			vec = vec[:d.Slots()]
		}
		results[name] = Value{Kind: KindF64Vec, F64Vec: vec}
	}
	return results, nil
}

func (r *floatRuntime) marshalInput(name string) ([]byte, uint64, int, error) {
	op, ok := r.inputs[name]
	if !ok || op.Cipher == nil {
		return nil, 0, 0, errs.E(errs.UnknownInputName, "session: input %q has not been encrypted", name)
	}
	data, err := r.be.MarshalCipher(*op.Cipher)
	if err != nil {
		return nil, 0, 0, err
	}
	return data, op.Cipher.Scale, op.Cipher.Level, nil
}

func (r *floatRuntime) stageRawInput(ks backend.KeySet, name string, data []byte, scale uint64, level int) error {
	ct, err := r.be.UnmarshalCipher(data, scale, level)
	if err != nil {
		return err
	}
	r.inputs[name] = backend.Operand[float64]{Cipher: &ct}
	return nil
}

func (r *floatRuntime) marshalOutput(name string) ([]byte, uint64, int, bool, error) {
	op, ok := r.outputs[name]
	if !ok || op.Cipher == nil {
		return nil, 0, 0, false, nil
	}
	data, err := r.be.MarshalCipher(*op.Cipher)
	if err != nil {
		return nil, 0, 0, false, err
	}
	return data, op.Cipher.Scale, op.Cipher.Level, true, nil
}

func (r *floatRuntime) decryptRaw(ks backend.KeySet, data []byte, scale uint64, level int) (Value, error) {
	ct, err := r.be.UnmarshalCipher(data, scale, level)
	if err != nil {
		return Value{}, err
	}
	pt, err := r.be.Decrypt(ct, ks)
	if err != nil {
		return Value{}, err
	}
	vec, err := r.be.Decode(pt)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindF64Vec, F64Vec: vec}, nil
}

func (r *floatRuntime) marshalSecretKey(ks backend.KeySet) ([]byte, error) {
	return r.be.MarshalSecretKey(ks)
}

func (r *floatRuntime) unmarshalSecretKey(data []byte) (backend.KeySet, error) {
	return r.be.UnmarshalSecretKey(data)
}

func (r *floatRuntime) decodeOperand(op backend.Operand[float64], ks backend.KeySet) ([]float64, error) {
	switch {
	case op.Cipher != nil:
		pt, err := r.be.Decrypt(*op.Cipher, ks)
		if err != nil {
			return nil, err
		}
		return r.be.Decode(pt)
	case op.Plain != nil:
		return r.be.Decode(*op.Plain)
	case op.Raw != nil:
		return op.Raw, nil
	default:
		return nil, errs.E(errs.EmptyResult, "session: output operand carries no value")
	}
}

type intRuntime struct {
	be       backend.Backend[int64]
	exec     *exec.Executor[int64]
	inputs   map[string]backend.Operand[int64]
	outputs  map[string]backend.Operand[int64]
	smallInt bool
}

func (r *intRuntime) genKeys(p params.Set) (backend.KeySet, error) { return r.be.GenKeys(p) }

func (r *intRuntime) hasInput(name string) bool { _, ok := r.inputs[name]; return ok }

func (r *intRuntime) clearInputs() { r.inputs = map[string]backend.Operand[int64]{} }

func (r *intRuntime) stageInput(ks backend.KeySet, name string, v Value, slots int, scale, level uint32, replace bool) error {
	if !replace && r.hasInput(name) {
		return nil
	}
	raw, err := v.asI64Slots(slots)
	if err != nil {
		return err
	}
	pt, err := r.be.Encode(raw, uint64(scale), int(level))
	if err != nil {
		return err
	}
	ct, err := r.be.Encrypt(pt, ks)
	if err != nil {
		return err
	}
	r.inputs[name] = backend.Operand[int64]{Cipher: &ct}
	return nil
}

func (r *intRuntime) run(d *dag.Dag, ctx *passes.Context, ks backend.KeySet) (map[string]Value, error) {
	out, err := r.exec.Run(d, ctx, ks, r.inputs)
	if err != nil {
		return nil, err
	}
	r.outputs = out
	results := make(map[string]Value, len(out))
	for name, op := range out {
		vec, err := r.decodeOperand(op, ks)
		if err != nil {
			return nil, err
		}
		if len(vec) > d.Slots() {
			vec = vec[:d.Slots()]
		}
		if r.smallInt && len(vec) == 1 {
			results[name] = Value{Kind: KindU8, U8: uint8(vec[0])}
			continue
		}
		results[name] = Value{Kind: KindI64Vec, I64Vec: vec}
	}
	return results, nil
}

func (r *intRuntime) marshalInput(name string) ([]byte, uint64, int, error) {
	op, ok := r.inputs[name]
	if !ok || op.Cipher == nil {
		return nil, 0, 0, errs.E(errs.UnknownInputName, "session: input %q has not been encrypted", name)
	}
	data, err := r.be.MarshalCipher(*op.Cipher)
	if err != nil {
		return nil, 0, 0, err
	}
	return data, op.Cipher.Scale, op.Cipher.Level, nil
}

func (r *intRuntime) stageRawInput(ks backend.KeySet, name string, data []byte, scale uint64, level int) error {
	ct, err := r.be.UnmarshalCipher(data, scale, level)
	if err != nil {
		return err
	}
	r.inputs[name] = backend.Operand[int64]{Cipher: &ct}
	return nil
}

func (r *intRuntime) marshalOutput(name string) ([]byte, uint64, int, bool, error) {
	op, ok := r.outputs[name]
	if !ok || op.Cipher == nil {
		return nil, 0, 0, false, nil
	}
	data, err := r.be.MarshalCipher(*op.Cipher)
	if err != nil {
		return nil, 0, 0, false, err
	}
	return data, op.Cipher.Scale, op.Cipher.Level, true, nil
}

func (r *intRuntime) decryptRaw(ks backend.KeySet, data []byte, scale uint64, level int) (Value, error) {
	ct, err := r.be.UnmarshalCipher(data, scale, level)
	if err != nil {
		return Value{}, err
	}
	pt, err := r.be.Decrypt(ct, ks)
	if err != nil {
		return Value{}, err
	}
	vec, err := r.be.Decode(pt)
	if err != nil {
		return Value{}, err
	}
	if r.smallInt && len(vec) == 1 {
		return Value{Kind: KindU8, U8: uint8(vec[0])}, nil
	}
	return Value{Kind: KindI64Vec, I64Vec: vec}, nil
}

func (r *intRuntime) marshalSecretKey(ks backend.KeySet) ([]byte, error) {
	return r.be.MarshalSecretKey(ks)
}

func (r *intRuntime) unmarshalSecretKey(data []byte) (backend.KeySet, error) {
	return r.be.UnmarshalSecretKey(data)
}

func (r *intRuntime) decodeOperand(op backend.Operand[int64], ks backend.KeySet) ([]int64, error) {
	switch {
	case op.Cipher != nil:
		pt, err := r.be.Decrypt(*op.Cipher, ks)
		if err != nil {
			return nil, err
		}
		return r.be.Decode(pt)
	case op.Plain != nil:
		return r.be.Decode(*op.Plain)
	case op.Raw != nil:
		return op.Raw, nil
	default:
		return nil, errs.E(errs.EmptyResult, "session: output operand carries no value")
	}
}
