// Package openfhebfv adapts github.com/Pro7ech/lattigo's heint package
// to the backend.Backend[int64] trait, grounding the "OpenFHEBFV"
// decision — the deeper-capacity BFV-family path picked when the
// post-reduction depth would exceed MaxSealBits on SEAL-BFV.
package openfhebfv

import (
	"github.com/Pro7ech/lattigo/core/rlwe"
	"github.com/Pro7ech/lattigo/he/heint"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/params"
)

func init() {
	backend.RegisterInt(backend.OpenFHEBFV, New)
}

type Adapter struct {
	params    heint.Parameters
	encoder   *heint.Encoder
	evaluator *heint.Evaluator
}

func New() backend.Backend[int64] { return &Adapter{} }

func (a *Adapter) Name() backend.Kind { return backend.OpenFHEBFV }

func (a *Adapter) GenKeys(p params.Set) (backend.KeySet, error) {
	lit := heint.ParametersLiteral{
		LogN:             p.LogN,
		LogQ:             p.CoeffModulusBits[:len(p.CoeffModulusBits)-1],
		LogP:             p.CoeffModulusBits[len(p.CoeffModulusBits)-1:],
		PlaintextModulus: 0x10001,
	}
	hp, err := heint.NewParametersFromLiteral(lit)
	if err != nil {
		return backend.KeySet{}, errs.E(errs.OpenFHEKeygenFailed, "openfhe-bfv: parameter construction failed: %w", err)
	}
	a.params = hp
	a.encoder = heint.NewEncoder(hp)

	kgen := rlwe.NewKeyGenerator(&hp)
	sk, pk := kgen.GenKeyPairNew()
	evk := rlwe.NewMemEvaluationKeySet(kgen.GenRelinearizationKeyNew(sk))
	for _, rot := range p.RotationKeys {
		galEl := hp.GaloisElement(rot)
		evk.GaloisKeys[galEl] = kgen.GenGaloisKeyNew(galEl, sk)
	}
	a.evaluator = heint.NewEvaluator(hp, evk)

	return backend.KeySet{SecretKey: sk, PublicKey: pk, RelinKey: evk.RelinearizationKey, GaloisKeys: evk.GaloisKeys}, nil
}

func (a *Adapter) Encode(v []int64, scale uint64, level int) (backend.Plain, error) {
	pt := heint.NewPlaintext(a.params, level)
	if err := a.encoder.Encode(v, pt); err != nil {
		return backend.Plain{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: encode failed: %w", err)
	}
	return backend.NewPlain(scale, level, pt), nil
}

func (a *Adapter) Encrypt(pt backend.Plain, ks backend.KeySet) (backend.Cipher, error) {
	enc := rlwe.NewEncryptor(&a.params, ks.PublicKey.(*rlwe.PublicKey))
	ct, err := enc.EncryptNew(pt.Inner().(*rlwe.Plaintext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: encrypt failed: %w", err)
	}
	return backend.NewCipher(pt.Scale, pt.Level, ct), nil
}

func (a *Adapter) Decrypt(ct backend.Cipher, ks backend.KeySet) (backend.Plain, error) {
	dec := rlwe.NewDecryptor(&a.params, ks.SecretKey.(*rlwe.SecretKey))
	pt := dec.DecryptNew(ct.Inner().(*rlwe.Ciphertext))
	return backend.NewPlain(ct.Scale, ct.Level, pt), nil
}

func (a *Adapter) Decode(pt backend.Plain) ([]int64, error) {
	out := make([]int64, a.params.MaxSlots())
	if err := a.encoder.Decode(pt.Inner().(*rlwe.Plaintext), out); err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-bfv: decode failed: %w", err)
	}
	return out, nil
}

func (a *Adapter) Add(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.AddNew)
}

func (a *Adapter) Sub(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.SubNew)
}

func (a *Adapter) Mul(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.binary(x, y, a.evaluator.MulNew)
}

func (a *Adapter) Div(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: division is only supported on the small-int backend")
}

func (a *Adapter) binary(x, y backend.Operand[int64], op func(op0, op1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error)) (backend.Cipher, error) {
	xc, err := a.asCiphertext(x)
	if err != nil {
		return backend.Cipher{}, err
	}
	yc, err := a.asCiphertext(y)
	if err != nil {
		return backend.Cipher{}, err
	}
	ct, err := op(xc, yc)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: evaluator op failed: %w", err)
	}
	return backend.NewCipher(0, ct.Level(), ct), nil
}

func (a *Adapter) asCiphertext(op backend.Operand[int64]) (*rlwe.Ciphertext, error) {
	if op.Cipher != nil {
		return op.Cipher.Inner().(*rlwe.Ciphertext), nil
	}
	if op.Plain != nil {
		pt := op.Plain.Inner().(*rlwe.Plaintext)
		return &rlwe.Ciphertext{Element: pt.Element}, nil
	}
	return nil, errs.E(errs.UnsupportedOperand, "openfhe-bfv: raw operand reached the backend")
}

func (a *Adapter) Negate(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.NegNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: negate failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateLeft(c backend.Cipher, k int) (backend.Cipher, error) {
	out, err := a.evaluator.RotateNew(c.Inner().(*rlwe.Ciphertext), k)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: rotate-left failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateRight(c backend.Cipher, k int) (backend.Cipher, error) {
	return a.RotateLeft(c, -k)
}

func (a *Adapter) Relinearize(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.RelinearizeNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: relinearize failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) Rescale(c backend.Cipher, divisorBits int) (backend.Cipher, error) {
	return c, nil
}

func (a *Adapter) ModSwitch(c backend.Cipher) (backend.Cipher, error) {
	return c, nil
}

func (a *Adapter) Bootstrap(c backend.Cipher) (backend.Cipher, error) {
	return backend.Cipher{}, errs.E(errs.OpenFHEBootstrapUnavailable, "openfhe-bfv: bootstrapping not supported")
}

// MarshalCipher serializes c via rlwe.Ciphertext's own binary codec.
func (a *Adapter) MarshalCipher(c backend.Cipher) ([]byte, error) {
	out, err := c.Inner().(*rlwe.Ciphertext).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-bfv: marshal ciphertext: %w", err)
	}
	return out, nil
}

// UnmarshalCipher reconstructs a ciphertext produced by MarshalCipher.
func (a *Adapter) UnmarshalCipher(data []byte, scale uint64, level int) (backend.Cipher, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: unmarshal ciphertext: %w", err)
	}
	return backend.NewCipher(0, ct.Level(), ct), nil
}

// MarshalSecretKey serializes only ks.SecretKey, the scoped-down form
// SaveKeys relies on (see backend.Backend's doc comment).
func (a *Adapter) MarshalSecretKey(ks backend.KeySet) ([]byte, error) {
	out, err := ks.SecretKey.(*rlwe.SecretKey).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-bfv: marshal secret key: %w", err)
	}
	return out, nil
}

// UnmarshalSecretKey reconstructs a KeySet carrying only the secret
// key data produced by MarshalSecretKey.
func (a *Adapter) UnmarshalSecretKey(data []byte) (backend.KeySet, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return backend.KeySet{}, errs.E(errs.UnsupportedOperand, "openfhe-bfv: unmarshal secret key: %w", err)
	}
	return backend.KeySet{SecretKey: sk}, nil
}
