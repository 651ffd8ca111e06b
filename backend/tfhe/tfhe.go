// Package tfhe adapts github.com/Pro7ech/lattigo's hebin package
// (blind-rotation evaluation over RLWE/RGSW ciphertexts) to the
// backend.Backend[int64] trait, grounding the "SmallInt" decision of
// the scheme dispatcher (§4.5) — the only backend the dispatcher picks
// once a Dag's ShortInt flag is set, and the only one that implements
// OpDiv natively.
//
// Values are carried one per ciphertext slot as LWE samples under
// paramsLWE, quantized by scaleLWE the way hebin's own test harness
// does it (see he/hebin/blindrotation_test.go). Linear operators
// (Add, Sub, Negate, the rotations) act directly on the RNS
// coefficients via ring.RNSRing and need no blind rotation. Mul and
// Div are nonlinear: the adapter evaluates them by blind-rotating
// through a per-operation test polynomial built with
// hebin.InitTestPolynomial, which only accepts a unary function of one
// ciphertext. A cipher-by-plain-constant Mul/Div therefore blind-rotates
// the constant's function directly; a cipher-by-cipher Mul/Div has no
// counterpart in the retrieved hebin surface (no tensor/2-D
// blind-rotation step is exposed) and is reported as unsupported
// rather than invented.
package tfhe

import (
	"math"

	"github.com/Pro7ech/lattigo/he/hebin"
	"github.com/Pro7ech/lattigo/ring"
	"github.com/Pro7ech/lattigo/rlwe"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/params"
)

func init() {
	backend.RegisterInt(backend.SmallInt, New)
}

// quantizationRange bounds the plaintext domain [-range, range] the
// adapter normalizes values into before blind-rotating; small-integer
// circuits in this compiler stay within int16 range per the typical
// LUT-evaluated workloads hebin targets.
const quantizationRange = 1 << 14

// Adapter wraps the LWE sample ring, the blind-rotation ring, and the
// key material hebin.GenEvaluationKeyNew produces.
type Adapter struct {
	paramsLWE rlwe.Parameters
	paramsBR  rlwe.Parameters
	evaluator *hebin.Evaluator

	skLWE *rlwe.SecretKey
	skBR  *rlwe.SecretKey
	brk   hebin.MemBlindRotationEvaluationKeySet

	scale float64
}

func New() backend.Backend[int64] { return &Adapter{} }

func (a *Adapter) Name() backend.Kind { return backend.SmallInt }

// GenKeys builds the LWE sample ring directly from the selected ring
// degree and the blind-rotation ring at twice that degree over a fixed
// small-int modulus, following the two-ring split in
// he/hebin/blindrotation_test.go (paramsLWE carries the samples,
// paramsBR carries the blind-rotation evaluation).
func (a *Adapter) GenKeys(p params.Set) (backend.KeySet, error) {
	lweLit := rlwe.ParametersLiteral{
		LogN:    p.LogN,
		Q:       asUint64(p.CoeffModulusBits),
		NTTFlag: true,
	}
	pLWE, err := rlwe.NewParametersFromLiteral(lweLit)
	if err != nil {
		return backend.KeySet{}, errs.E(errs.SmallIntRangeExceeded, "smallint: LWE parameter construction failed: %w", err)
	}
	a.paramsLWE = pLWE

	brLit := rlwe.ParametersLiteral{
		LogN:    p.LogN + 1,
		Q:       []uint64{0x7fff801},
		NTTFlag: true,
	}
	pBR, err := rlwe.NewParametersFromLiteral(brLit)
	if err != nil {
		return backend.KeySet{}, errs.E(errs.SmallIntRangeExceeded, "smallint: blind-rotation parameter construction failed: %w", err)
	}
	a.paramsBR = pBR
	a.scale = float64(pBR.Q()[0]) / (4.0 * quantizationRange)

	a.skLWE = rlwe.NewKeyGenerator(pLWE).GenSecretKeyNew()
	a.skBR = rlwe.NewKeyGenerator(pBR).GenSecretKeyNew()

	evkParams := rlwe.EvaluationKeyParameters{}
	evkParams.DigitDecomposition.Type = rlwe.Unsigned
	evkParams.Log2Basis = 7
	a.brk = hebin.GenEvaluationKeyNew(pBR, a.skBR, pLWE, a.skLWE, evkParams)

	a.evaluator = hebin.NewEvaluator(pBR, pLWE)

	return backend.KeySet{SecretKey: a.skLWE, PublicKey: a.skBR}, nil
}

func (a *Adapter) Encode(v []int64, scale uint64, level int) (backend.Plain, error) {
	pt := rlwe.NewPlaintext(a.paramsLWE, a.paramsLWE.MaxLevel(), -1)
	q := a.paramsLWE.Q()[0]
	lweScale := float64(q) / (4.0 * quantizationRange)
	for i, x := range v {
		if i >= len(pt.Q.At(0)) {
			break
		}
		pt.Q.At(0)[i] = scaleUp(float64(x), lweScale, q)
	}
	if pt.IsNTT {
		a.paramsLWE.RingQ().NTT(pt.Q, pt.Q)
	}
	return backend.NewPlain(scale, level, pt), nil
}

func (a *Adapter) Encrypt(pt backend.Plain, ks backend.KeySet) (backend.Cipher, error) {
	sk := ks.SecretKey.(*rlwe.SecretKey)
	enc := rlwe.NewEncryptor(a.paramsLWE, sk)
	ct := rlwe.NewCiphertext(a.paramsLWE, 1, a.paramsLWE.MaxLevel(), -1)
	if err := enc.Encrypt(pt.Inner().(*rlwe.Plaintext), ct); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "smallint: encrypt failed: %w", err)
	}
	return backend.NewCipher(pt.Scale, pt.Level, ct), nil
}

func (a *Adapter) Decrypt(ct backend.Cipher, ks backend.KeySet) (backend.Plain, error) {
	sk := ks.SecretKey.(*rlwe.SecretKey)
	dec := rlwe.NewDecryptor(a.paramsLWE, sk)
	pt := rlwe.NewPlaintext(a.paramsLWE, a.paramsLWE.MaxLevel(), -1)
	dec.Decrypt(ct.Inner().(*rlwe.Ciphertext), pt)
	return backend.NewPlain(ct.Scale, ct.Level, pt), nil
}

func (a *Adapter) Decode(pt backend.Plain) ([]int64, error) {
	p := pt.Inner().(*rlwe.Plaintext)
	coeffs := p.Q.At(0)
	if p.IsNTT {
		cp := a.paramsLWE.RingQ().NewRNSPoly()
		a.paramsLWE.RingQ().INTT(p.Q, cp)
		coeffs = cp.At(0)
	}
	q := a.paramsLWE.Q()[0]
	qHalf := q >> 1
	lweScale := float64(q) / (4.0 * quantizationRange)
	out := make([]int64, len(coeffs))
	for i, c := range coeffs {
		if c > qHalf {
			out[i] = -int64(math.Round(float64(q-c) / lweScale))
		} else {
			out[i] = int64(math.Round(float64(c) / lweScale))
		}
	}
	return out, nil
}

func (a *Adapter) Add(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.linear(x, y, a.paramsLWE.RingQ().Add)
}

func (a *Adapter) Sub(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.linear(x, y, a.paramsLWE.RingQ().Sub)
}

// linear applies a ring.RNSRing binary op (Add/Sub) coefficient-wise
// to both ciphertext polynomials, the same way hebin's own test
// manipulates ctLWE.Q directly rather than going through an evaluator.
func (a *Adapter) linear(x, y backend.Operand[int64], op func(p1, p2, p3 ring.RNSPoly)) (backend.Cipher, error) {
	xc, err := a.asCiphertext(x)
	if err != nil {
		return backend.Cipher{}, err
	}
	yc, err := a.asCiphertext(y)
	if err != nil {
		return backend.Cipher{}, err
	}
	out := xc.Clone()
	for i := range out.Q {
		op(xc.Q[i], yc.Q[i], out.Q[i])
	}
	return backend.NewCipher(0, out.Level(), out), nil
}

func (a *Adapter) asCiphertext(op backend.Operand[int64]) (*rlwe.Ciphertext, error) {
	if op.Cipher != nil {
		return op.Cipher.Inner().(*rlwe.Ciphertext), nil
	}
	if op.Plain != nil {
		pt := op.Plain.Inner().(*rlwe.Plaintext)
		return &rlwe.Ciphertext{MetaData: pt.MetaData, Vector: &ring.Vector{Q: []ring.RNSPoly{pt.Q}}}, nil
	}
	return nil, errs.E(errs.UnsupportedOperand, "smallint: raw operand reached the backend")
}

// Mul implements cipher-by-plain-constant multiplication via blind
// rotation of the linear function f(x) = k*x; cipher-by-cipher
// multiplication is not representable as a unary test polynomial and
// is reported as unsupported. Multiplication is commutative, so which
// operand is the ciphertext does not affect the function built.
func (a *Adapter) Mul(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.blindRotateByConstant(x, y, "smallint: mul", func(l, r float64) float64 { return l * r })
}

// Div implements cipher-by-plain-constant integer division via blind
// rotation, the only division form the dispatcher ever routes here
// (§4.5: a Dag using OpDiv always sets ShortInt). Division is not
// commutative: blindRotateByConstant evaluates f(v) = binOp(v, k) when
// the ciphertext is the dividend (x/k) and f(v) = binOp(k, v) when it
// is the divisor (k/x), so this closure must itself take (left, right)
// in operand order rather than assuming the ciphertext is always the
// numerator.
func (a *Adapter) Div(x, y backend.Operand[int64]) (backend.Cipher, error) {
	return a.blindRotateByConstant(x, y, "smallint: div", func(l, r float64) float64 {
		if r == 0 {
			return 0
		}
		return math.Trunc(l / r)
	})
}

// blindRotateByConstant builds the unary test polynomial for a
// cipher-by-plain-constant operation and evaluates it via blind
// rotation. binOp is applied as binOp(left, right) in the original
// operand order: ctOnLeft tracks whether the ciphertext was x (so the
// constant is the right operand, e.g. x/k) or y (so the constant is
// the left operand, e.g. k/x) — required for non-commutative ops like
// Div, where which side the ciphertext sits on changes the function.
func (a *Adapter) blindRotateByConstant(x, y backend.Operand[int64], op string, binOp func(left, right float64) float64) (backend.Cipher, error) {
	var ctIn *rlwe.Ciphertext
	var constant int64
	var ctOnLeft bool
	switch {
	case x.Cipher != nil && y.Plain != nil:
		ctIn = x.Cipher.Inner().(*rlwe.Ciphertext)
		constant = decodeScalar(y.Plain.Inner().(*rlwe.Plaintext), a.paramsLWE.Q()[0])
		ctOnLeft = true
	case y.Cipher != nil && x.Plain != nil:
		ctIn = y.Cipher.Inner().(*rlwe.Ciphertext)
		constant = decodeScalar(x.Plain.Inner().(*rlwe.Plaintext), a.paramsLWE.Q()[0])
		ctOnLeft = false
	default:
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "%s: cipher-by-cipher form has no blind-rotation counterpart in this backend", op)
	}
	if constant == 0 && op == "smallint: div" && ctOnLeft {
		return backend.Cipher{}, errs.E(errs.SmallIntDivByZero, "smallint: division by zero constant")
	}

	fn := func(v float64) float64 {
		if ctOnLeft {
			return binOp(v, float64(constant))
		}
		return binOp(float64(constant), v)
	}
	poly := hebin.InitTestPolynomial(fn, rlwe.NewScale(a.scale*4.0*quantizationRange), a.paramsBR.RingQ(), -quantizationRange, quantizationRange)
	polyMap := map[int]*ring.RNSPoly{0: &poly}

	out, err := a.evaluator.Evaluate(ctIn, polyMap, a.brk)
	if err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "%s: blind rotation failed: %w", op, err)
	}
	return backend.NewCipher(0, out[0].Level(), out[0]), nil
}

func (a *Adapter) Negate(c backend.Cipher) (backend.Cipher, error) {
	ctIn := c.Inner().(*rlwe.Ciphertext)
	out := ctIn.Clone()
	for i := range out.Q {
		a.paramsLWE.RingQ().Neg(ctIn.Q[i], out.Q[i])
	}
	return backend.NewCipher(c.Scale, out.Level(), out), nil
}

func (a *Adapter) RotateLeft(c backend.Cipher, k int) (backend.Cipher, error) {
	ctIn := c.Inner().(*rlwe.Ciphertext)
	galEl := a.paramsLWE.GaloisElement(k)
	eval := rlwe.NewEvaluator(a.paramsLWE, rlwe.NewMemEvaluationKeySet(nil))
	out := rlwe.NewCiphertext(a.paramsLWE, 1, ctIn.Level(), -1)
	if err := eval.Automorphism(ctIn, galEl, out); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "smallint: rotate-left failed: %w", err)
	}
	return backend.NewCipher(c.Scale, out.Level(), out), nil
}

func (a *Adapter) RotateRight(c backend.Cipher, k int) (backend.Cipher, error) {
	return a.RotateLeft(c, -k)
}

// Relinearize is a no-op: the LWE samples this backend encrypts have
// degree one throughout, since Mul/Div are implemented by blind
// rotation (which returns a fresh degree-one sample) rather than by
// tensoring ciphertexts.
func (a *Adapter) Relinearize(c backend.Cipher) (backend.Cipher, error) {
	return c, nil
}

// Rescale is a no-op: the small-int backend has no CKKS-style scale to
// manage. The Rescaler pass never fires on a ShortInt Dag.
func (a *Adapter) Rescale(c backend.Cipher, divisorBits int) (backend.Cipher, error) {
	return c, nil
}

// ModSwitch is likewise unused on ShortInt graphs.
func (a *Adapter) ModSwitch(c backend.Cipher) (backend.Cipher, error) {
	return c, nil
}

func (a *Adapter) Bootstrap(c backend.Cipher) (backend.Cipher, error) {
	return backend.Cipher{}, errs.E(errs.OpenFHEBootstrapUnavailable, "smallint: bootstrapping not supported; noise is refreshed by blind rotation instead")
}

func decodeScalar(pt *rlwe.Plaintext, q uint64) int64 {
	c := pt.Q.At(0)[0]
	qHalf := q >> 1
	if c > qHalf {
		return -int64(q - c)
	}
	return int64(c)
}

func scaleUp(value, scale float64, q uint64) uint64 {
	if value < 0 {
		return q - uint64(math.Round(-value*scale))
	}
	return uint64(math.Round(value * scale))
}

func asUint64(bits []int) []uint64 {
	out := make([]uint64, len(bits))
	for i, b := range bits {
		out[i] = uint64(1)<<uint(b) - 1
	}
	return out
}

// MarshalCipher serializes c via rlwe.Ciphertext's own binary codec.
func (a *Adapter) MarshalCipher(c backend.Cipher) ([]byte, error) {
	out, err := c.Inner().(*rlwe.Ciphertext).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "small-int: marshal ciphertext: %w", err)
	}
	return out, nil
}

// UnmarshalCipher reconstructs a ciphertext produced by MarshalCipher.
func (a *Adapter) UnmarshalCipher(data []byte, scale uint64, level int) (backend.Cipher, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return backend.Cipher{}, errs.E(errs.UnsupportedOperand, "small-int: unmarshal ciphertext: %w", err)
	}
	return backend.NewCipher(0, ct.Level(), ct), nil
}

// MarshalSecretKey serializes only ks.SecretKey (the LWE-ring secret
// key), the scoped-down form SaveKeys relies on (see backend.Backend's
// doc comment). The blind-rotation ring's own secret key (kept on the
// Adapter and in KeySet.PublicKey) and evaluation key set are not
// reconstructable from this alone; a reloaded session can decrypt but
// not evaluate against a small-int backend restored this way.
func (a *Adapter) MarshalSecretKey(ks backend.KeySet) ([]byte, error) {
	out, err := ks.SecretKey.(*rlwe.SecretKey).MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.UnsupportedOperand, "small-int: marshal secret key: %w", err)
	}
	return out, nil
}

// UnmarshalSecretKey reconstructs a KeySet carrying only the secret
// key data produced by MarshalSecretKey.
func (a *Adapter) UnmarshalSecretKey(data []byte) (backend.KeySet, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return backend.KeySet{}, errs.E(errs.UnsupportedOperand, "small-int: unmarshal secret key: %w", err)
	}
	return backend.KeySet{SecretKey: sk}, nil
}
