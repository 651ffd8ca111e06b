// Package openfhecks adapts github.com/Pro7ech/lattigo's hefloat
// package to the backend.Backend[float64] trait, grounding the
// "OpenFHECKKS" decision of the scheme dispatcher (§4.5) — the deeper
// of the two CKKS paths, the only one the executor's bootstrapping
// hook (§4.6) fires against.
package openfhecks

import (
	"github.com/Pro7ech/lattigo/core/rlwe"
	"github.com/Pro7ech/lattigo/he"
	"github.com/Pro7ech/lattigo/he/hefloat"
	"github.com/Pro7ech/lattigo/ring"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/params"
)

func init() {
	backend.RegisterFloat(backend.OpenFHECKKS, New)
}

// Adapter wraps hefloat.Parameters plus the evaluator/encoder pair and
// an optional bootstrapper, set once GenKeys (and, separately, a
// bootstrapping key load) has run.
type Adapter struct {
	params      hefloat.Parameters
	encoder     *hefloat.Encoder
	evaluator   *hefloat.Evaluator
	bootstrapper he.Bootstrapper[rlwe.Ciphertext]
}

func New() backend.Backend[float64] { return &Adapter{} }

func (a *Adapter) Name() backend.Kind { return backend.OpenFHECKKS }

func (a *Adapter) GenKeys(p params.Set) (backend.KeySet, error) {
	lit := hefloat.ParametersLiteral{
		LogN:            p.LogN,
		LogQ:            p.CoeffModulusBits[:len(p.CoeffModulusBits)-1],
		LogP:            p.CoeffModulusBits[len(p.CoeffModulusBits)-1:],
		LogDefaultScale: p.CoeffModulusBits[0],
		RingType:        ring.Standard,
	}
	hp, err := hefloat.NewParametersFromLiteral(lit)
	if err != nil {
		return backend.KeySet{}, errs.E(errs.OpenFHEKeygenFailed, "openfhe-ckks: parameter construction failed: %w", err)
	}
	a.params = hp
	a.encoder = hefloat.NewEncoder(hp)

	kgen := rlwe.NewKeyGenerator(&hp)
	sk, pk := kgen.GenKeyPairNew()
	evk := rlwe.NewMemEvaluationKeySet(kgen.GenRelinearizationKeyNew(sk))
	for _, rot := range p.RotationKeys {
		galEl := hp.GaloisElement(rot)
		evk.GaloisKeys[galEl] = kgen.GenGaloisKeyNew(galEl, sk)
	}
	a.evaluator = hefloat.NewEvaluator(hp, evk)

	return backend.KeySet{SecretKey: sk, PublicKey: pk, RelinKey: evk.RelinearizationKey, GaloisKeys: evk.GaloisKeys}, nil
}

// LoadBootstrapper installs a bootstrapper built from out-of-band
// bootstrapping keys (see §6 "Bootstrapping keys are serialized
// out-of-band"). Called by the session layer after GenKeys, never by
// the executor itself.
func (a *Adapter) LoadBootstrapper(b he.Bootstrapper[rlwe.Ciphertext]) { a.bootstrapper = b }

func (a *Adapter) Encode(v []float64, scale uint64, level int) (backend.Plain, error) {
	pt := hefloat.NewPlaintext(a.params, level)
	pt.Scale = rlwe.NewScale(scale)
	if err := a.encoder.Encode(v, pt); err != nil {
		return backend.Plain{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: encode failed: %w", err)
	}
	return backend.NewPlain(scale, level, pt), nil
}

func (a *Adapter) Encrypt(pt backend.Plain, ks backend.KeySet) (backend.Cipher, error) {
	enc := rlwe.NewEncryptor(&a.params, ks.PublicKey.(*rlwe.PublicKey))
	ct, err := enc.EncryptNew(pt.Inner().(*rlwe.Plaintext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: encrypt failed: %w", err)
	}
	return backend.NewCipher(pt.Scale, pt.Level, ct), nil
}

func (a *Adapter) Decrypt(ct backend.Cipher, ks backend.KeySet) (backend.Plain, error) {
	dec := rlwe.NewDecryptor(&a.params, ks.SecretKey.(*rlwe.SecretKey))
	pt := dec.DecryptNew(ct.Inner().(*rlwe.Ciphertext))
	return backend.NewPlain(ct.Scale, ct.Level, pt), nil
}

func (a *Adapter) Decode(pt backend.Plain) ([]float64, error) {
	out := make([]float64, a.params.MaxSlots())
	if err := a.encoder.Decode(pt.Inner().(*rlwe.Plaintext), out); err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-ckks: decode failed: %w", err)
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
	return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: division is only supported on the small-int backend")
}

func (a *Adapter) binary(x, y backend.Operand[float64], op func(op0, op1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error)) (backend.Cipher, error) {
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
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: evaluator op failed: %w", err)
	}
	return backend.NewCipher(ct.Scale.Uint64(), ct.Level(), ct), nil
}

func (a *Adapter) asCiphertext(op backend.Operand[float64]) (*rlwe.Ciphertext, error) {
	if op.Cipher != nil {
		return op.Cipher.Inner().(*rlwe.Ciphertext), nil
	}
	if op.Plain != nil {
		pt := op.Plain.Inner().(*rlwe.Plaintext)
		return &rlwe.Ciphertext{Element: pt.Element}, nil
	}
	return nil, errs.E(errs.UnsupportedOperand, "openfhe-ckks: raw operand reached the backend")
}

func (a *Adapter) Negate(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.NegNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: negate failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateLeft(c backend.Cipher, k int) (backend.Cipher, error) {
	out, err := a.evaluator.RotateNew(c.Inner().(*rlwe.Ciphertext), k)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: rotate-left failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) RotateRight(c backend.Cipher, k int) (backend.Cipher, error) {
	return a.RotateLeft(c, -k)
}

func (a *Adapter) Relinearize(c backend.Cipher) (backend.Cipher, error) {
	out, err := a.evaluator.RelinearizeNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: relinearize failed: %w", err)
	}
	return backend.NewCipher(c.Scale, c.Level, out), nil
}

func (a *Adapter) Rescale(c backend.Cipher, divisorBits int) (backend.Cipher, error) {
	out, err := a.evaluator.RescaleNew(c.Inner().(*rlwe.Ciphertext))
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: rescale failed: %w", err)
	}
	return backend.NewCipher(out.Scale.Uint64(), out.Level(), out), nil
}

func (a *Adapter) ModSwitch(c backend.Cipher) (backend.Cipher, error) {
	in := c.Inner().(*rlwe.Ciphertext)
	out := in.Clone()
	if err := a.evaluator.ModSwitch(in, out); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: mod-switch failed: %w", err)
	}
	return backend.NewCipher(c.Scale, out.Level(), out), nil
}

// Bootstrap refreshes c's noise budget via the loaded bootstrapper.
// The executor calls this only when §4.6's depth thresholds
// (MAX_MULT_DEPTH_NO_BOOT or final_depth-2) are crossed and the Dag
// has bootstrapping enabled.
func (a *Adapter) Bootstrap(c backend.Cipher) (backend.Cipher, error) {
	if a.bootstrapper == nil {
		return backend.Cipher{}, errs.E(errs.OpenFHEBootstrapUnavailable, "openfhe-ckks: no bootstrapper loaded; call LoadBootstrapper first")
	}
	in := c.Inner().(*rlwe.Ciphertext)
	out, err := a.bootstrapper.Bootstrap(in)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.OpenFHEBootstrapUnavailable, "openfhe-ckks: bootstrap failed: %w", err)
	}
	return backend.NewCipher(out.Scale.Uint64(), out.Level(), out), nil
}

// MarshalCipher serializes c via rlwe.Ciphertext's own binary codec.
func (a *Adapter) MarshalCipher(c backend.Cipher) ([]byte, error) {
	out, err := c.Inner().(*rlwe.Ciphertext).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-ckks: marshal ciphertext: %w", err)
	}
	return out, nil
}

// UnmarshalCipher reconstructs a ciphertext produced by MarshalCipher.
func (a *Adapter) UnmarshalCipher(data []byte, scale uint64, level int) (backend.Cipher, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: unmarshal ciphertext: %w", err)
	}
	ct.Scale = rlwe.NewScale(scale)
	return backend.NewCipher(scale, level, ct), nil
}

// MarshalSecretKey serializes only ks.SecretKey, the scoped-down form
// SaveKeys relies on (see backend.Backend's doc comment).
func (a *Adapter) MarshalSecretKey(ks backend.KeySet) ([]byte, error) {
	out, err := ks.SecretKey.(*rlwe.SecretKey).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "openfhe-ckks: marshal secret key: %w", err)
	}
	return out, nil
}

// UnmarshalSecretKey reconstructs a KeySet carrying only the secret
// key data produced by MarshalSecretKey.
func (a *Adapter) UnmarshalSecretKey(data []byte) (backend.KeySet, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return backend.KeySet{}, errs.E(errs.UnsupportedOperand, "openfhe-ckks: unmarshal secret key: %w", err)
	}
	return backend.KeySet{SecretKey: sk}, nil
}
