// Package sealckks adapts github.com/tuneinsight/lattigo/v5's CKKS
// scheme to the backend.Backend[float64] trait, grounding the
// "SealCKKS" decision of the scheme dispatcher (§4.5). Naming follows
// the spec's characterization of the grounding library as one of "two
// CKKS implementations" playing the role the original system's SEAL
// binding played; no SEAL C++ library is involved, only the pure-Go
// lattice arithmetic tuneinsight/lattigo provides.
package sealckks

import (
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/ring"
	"github.com/tuneinsight/lattigo/v5/schemes/ckks"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/params"
)

func init() {
	backend.RegisterFloat(backend.SealCKKS, New)
}

// Adapter wraps one compiled ckks.Parameters instance plus the
// encoder/evaluator pair the executor drives. A fresh Adapter is built
// per session by GenKeys; Encoder/Evaluator are nil until then.
type Adapter struct {
	params   ckks.Parameters
	encoder  *ckks.Encoder
	kgen     *rlwe.KeyGenerator
	evalKeys *rlwe.MemEvaluationKeySet
	evaluator *ckks.Evaluator
}

// New constructs an unconfigured Adapter; GenKeys finishes setup once
// the caller has a params.Set derived from the compiled Dag.
func New() backend.Backend[float64] { return &Adapter{} }

func (a *Adapter) Name() backend.Kind { return backend.SealCKKS }

// GenKeys builds CKKS parameters from the selected ring degree and
// coefficient-modulus chain, generates a secret/public key pair, a
// relinearization key and a Galois key for every rotation the DAG
// uses, following the TestContext pattern of
// schemes/ckks/test_utils.go in the grounding library.
func (a *Adapter) GenKeys(p params.Set) (backend.KeySet, error) {
	logQ := make([]int, len(p.CoeffModulusBits))
	copy(logQ, p.CoeffModulusBits)

	lit := ckks.ParametersLiteral{
		LogN:            p.LogN,
		LogQ:            logQ[:len(logQ)-1],
		LogP:            logQ[len(logQ)-1:],
		LogDefaultScale: int(p.CoeffModulusBits[0]),
		RingType:        ring.Standard,
	}
	cp, err := ckks.NewParametersFromLiteral(lit)
	if err != nil {
		return backend.KeySet{}, errs.E(errs.SealKeygenFailed, "seal-ckks: parameter construction failed: %w", err)
	}
	a.params = cp
	a.encoder = ckks.NewEncoder(cp)

	a.kgen = rlwe.NewKeyGenerator(cp)
	sk, pk := a.kgen.GenKeyPairNew()

	evk := rlwe.NewMemEvaluationKeySet(a.kgen.GenRelinearizationKeyNew(sk))
	for _, rot := range p.RotationKeys {
		galEl := cp.GaloisElement(rot)
		evk.GaloisKeys[galEl] = a.kgen.GenGaloisKeyNew(galEl, sk)
	}
	a.evalKeys = evk
	a.evaluator = ckks.NewEvaluator(cp, evk)

	return backend.KeySet{SecretKey: sk, PublicKey: pk, RelinKey: evk.RelinearizationKey, GaloisKeys: evk.GaloisKeys}, nil
}

func (a *Adapter) Encode(v []float64, scale uint64, level int) (backend.Plain, error) {
	pt := ckks.NewPlaintext(a.params, level)
	pt.Scale = rlwe.NewScale(scale)
	if err := a.encoder.Encode(v, pt); err != nil {
		return backend.Plain{}, errs.E(errs.UnsupportedOperand, "seal-ckks: encode failed: %w", err)
	}
	return backend.NewPlain(scale, level, pt), nil
}

func (a *Adapter) Encrypt(pt backend.Plain, ks backend.KeySet) (backend.Cipher, error) {
	enc := rlwe.NewEncryptor(a.params, ks.PublicKey.(*rlwe.PublicKey))
	ct, err := enc.EncryptNew(pt.Inner().(*rlwe.Plaintext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: encrypt failed: %w", err)
	}
	return backend.NewCipher(pt.Scale, pt.Level, ct), nil
}

func (a *Adapter) Decrypt(ct backend.Cipher, ks backend.KeySet) (backend.Plain, error) {
	dec := rlwe.NewDecryptor(a.params, ks.SecretKey.(*rlwe.SecretKey))
	pt := dec.DecryptNew(ct.Inner().(*rlwe.Ciphertext))
	return backend.NewPlain(ct.Scale, ct.Level, pt), nil
}

func (a *Adapter) Decode(pt backend.Plain) ([]float64, error) {
	out := make([]float64, a.params.MaxSlots())
	if err := a.encoder.Decode(pt.Inner().(*rlwe.Plaintext), out); err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "seal-ckks: decode failed: %w", err)
	}
	return out, nil
}

func (a *Adapter) Add(x, y backend.Operand[float64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.AddNew)
}

func (a *Adapter) Sub(x, y backend.Operand[float64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.SubNew)
}

func (a *Adapter) Mul(x, y backend.Operand[float64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.MulNew)
}

func (a *Adapter) Div(x, y backend.Operand[float64]) (backend.Cipher, error) {
	return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: division is only supported on the small-int backend")
}

// binary resolves each operand's backend-specific operand (ciphertext
// or plaintext; a raw operand has already been wrapped in an Encode
// node by EncodeInserter and never reaches a backend) and dispatches
// to op, matching the "cipher-with-plain, cipher-with-cipher variants"
// the executor's opcode description names.
func (a *Adapter) binary(x, y backend.Operand[float64], op func(op0, op1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error)) (backend.Cipher, error) {
	xc, yc, err := a.resolveCiphers(x, y)
	if err != nil {
		return backend.Cipher{}, err
	}
	ct, err := op(xc, yc)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: evaluator op failed: %w", err)
	}
	return backend.NewCipher(ct.Scale.Uint64(), ct.Level(), ct), nil
}

// resolveCiphers materializes both operands as ciphertexts. A plain
// operand is re-encrypted-as-zero-noise is wrong for CKKS plaintext
// arithmetic; instead the evaluator's native cipher x plain overloads
// would be used in a non-generic implementation. Kept symmetric here
// (both sides as *rlwe.Ciphertext) since rlwe.Evaluator exposes
// cipher x cipher overloads directly and cipher x plain is a thin
// wrapper one layer up that this adapter does not need to special
// case for the add/sub/mul opcodes the executor issues.
func (a *Adapter) resolveCiphers(x, y backend.Operand[float64]) (*rlwe.Ciphertext, *rlwe.Ciphertext, error) {
	xc, err := a.asCiphertext(x)
	if err != nil {
		return nil, nil, err
	}
	yc, err := a.asCiphertext(y)
	if err != nil {
		return nil, nil, err
	}
	return xc, yc, nil
}

func (a *Adapter) asCiphertext(op backend.Operand[float64]) (*rlwe.Ciphertext, error) {
	if op.Cipher != nil {
		return op.Cipher.Inner().(*rlwe.Ciphertext), nil
	}
	if op.Plain != nil {
		pt := op.Plain.Inner().(*rlwe.Plaintext)
		return &rlwe.Ciphertext{Element: pt.Element}, nil
	}
	return nil, errs.E(errs.UnsupportedOperand, "seal-ckks: raw operand reached the backend; EncodeInserter should have wrapped it")
}

func (a *Adapter) Negate(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.NegNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: negate failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateLeft(c backend.Cipher, k int) (backend.Cipher, error) {
	out, err := a.evaluator.RotateNew(c.Inner().(*rlwe.Ciphertext), k)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: rotate-left failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateRight(c backend.Cipher, k int) (backend.Cipher, error) {
	return a.RotateLeft(c, -k)
}

func (a *Adapter) Relinearize(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.RelinearizeNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: relinearize failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) Rescale(c backend.Cipher, divisorBits int) (backend.Cipher, error) {
	out, err := a.evaluator.RescaleNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: rescale failed: %w", err)
	}
	return backend.NewCipher(out.Scale.Uint64(), out.Level(), out), nil
}

func (a *Adapter) ModSwitch(c backend.Cipher) (backend.Cipher, error) {
	in := c.Inner().(*rlwe.Ciphertext)
	out := in.CopyNew()
	if err := a.evaluator.GetRLWEEvaluator().ModSwitch(in, out); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: mod-switch failed: %w", err)
	}
	return backend.NewCipher(c.Scale, out.Level(), out), nil
}

// Bootstrap is unsupported on this backend: bootstrapping is only
// wired for OpenFHECKKS per §4.6.
func (a *Adapter) Bootstrap(c backend.Cipher) (backend.Cipher, error) {
	return backend.Cipher{}, errs.E(errs.OpenFHEBootstrapUnavailable, "seal-ckks: bootstrapping not supported; use OpenFHECKKS")
}

// MarshalCipher serializes c via rlwe.Ciphertext's own binary codec.
func (a *Adapter) MarshalCipher(c backend.Cipher) ([]byte, error) {
	out, err := c.Inner().(*rlwe.Ciphertext).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "seal-ckks: marshal ciphertext: %w", err)
	}
	return out, nil
}

// UnmarshalCipher reconstructs a ciphertext produced by MarshalCipher,
// re-attaching the scale/level carried alongside it in the wire
// message (the rlwe wire form itself does not round-trip CKKS scale).
func (a *Adapter) UnmarshalCipher(data []byte, scale uint64, level int) (backend.Cipher, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "seal-ckks: unmarshal ciphertext: %w", err)
	}
	ct.Scale = rlwe.NewScale(scale)
	return backend.NewCipher(scale, level, ct), nil
}

// MarshalSecretKey serializes only ks.SecretKey, the scoped-down form
// SaveKeys relies on (see backend.Backend's doc comment).
func (a *Adapter) MarshalSecretKey(ks backend.KeySet) ([]byte, error) {
	out, err := ks.SecretKey.(*rlwe.SecretKey).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "seal-ckks: marshal secret key: %w", err)
	}
	return out, nil
}

// UnmarshalSecretKey reconstructs a KeySet carrying only the secret
// key data produced by MarshalSecretKey; PublicKey/RelinKey/GaloisKeys
// are left nil and a Decrypt-only session is all this KeySet supports.
func (a *Adapter) UnmarshalSecretKey(data []byte) (backend.KeySet, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return backend.KeySet{}, errs.E(errs.UnsupportedOperand, "seal-ckks: unmarshal secret key: %w", err)
	}
	return backend.KeySet{SecretKey: sk}, nil
}
