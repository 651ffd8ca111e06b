// Package backend defines the scheme-parametric trait the executor
// (package exec) drives, and the compile-time-closed registry of
// concrete adapters (§4.9). The mid-end never imports a backend
// subpackage directly; it looks one up by Kind with ForFloat/ForInt.
package backend

import "github.com/fhegraph/hedag/params"

// Kind identifies one of the five concrete backends the scheme
// dispatcher (§4.5) can choose.
type Kind uint8

const (
	SealCKKS Kind = iota
	OpenFHECKKS
	SealBFV
	OpenFHEBFV
	SmallInt
)

func (k Kind) String() string {
	switch k {
	case SealCKKS:
		return "SealCKKS"
	case OpenFHECKKS:
		return "OpenFHECKKS"
	case SealBFV:
		return "SealBFV"
	case OpenFHEBFV:
		return "OpenFHEBFV"
	case SmallInt:
		return "SmallInt"
	default:
		return "Unknown"
	}
}

// KeySet bundles whatever key material a backend's GenKeys produced:
// secret key, public key, relinearization key and, when the graph uses
// rotations, a Galois/rotation key set. Adapters populate only the
// fields their scheme needs; the executor never inspects these
// directly, it only ever passes the KeySet back into the same
// backend's methods.
type KeySet struct {
	SecretKey   interface{}
	PublicKey   interface{}
	RelinKey    interface{}
	GaloisKeys  interface{}
}

// Plain is an opaque encoded-but-unencrypted value, backend-specific.
type Plain struct {
	Scale uint64
	Level int
	inner interface{}
}

// NewPlain wraps a backend-internal plaintext representation.
func NewPlain(scale uint64, level int, inner interface{}) Plain {
	return Plain{Scale: scale, Level: level, inner: inner}
}

// Inner returns the backend-specific value a Plain wraps, for use by
// the adapter that produced it.
func (p Plain) Inner() interface{} { return p.inner }

// Cipher is an opaque ciphertext, backend-specific.
type Cipher struct {
	Scale uint64
	Level int
	inner interface{}
}

// NewCipher wraps a backend-internal ciphertext representation.
func NewCipher(scale uint64, level int, inner interface{}) Cipher {
	return Cipher{Scale: scale, Level: level, inner: inner}
}

// Inner returns the backend-specific value a Cipher wraps.
func (c Cipher) Inner() interface{} { return c.inner }

// Operand is the runtime-value union the executor dispatches over:
// exactly one of Cipher, Plain or Raw is meaningful, mirroring dag.Type.
type Operand[T any] struct {
	Cipher *Cipher
	Plain  *Plain
	Raw    []T
}

// Backend is the generic trait every concrete adapter implements,
// parametric over the runtime element type T (float64 for CKKS,
// int64 for the integer schemes). See §4.9 for the full
// rationale: this is a single generic interface implemented five times
// rather than five bespoke interfaces with duplicated method sets.
type Backend[T any] interface {
	Name() Kind
	GenKeys(p params.Set) (KeySet, error)
	Encode(v []T, scale uint64, level int) (Plain, error)
	Encrypt(pt Plain, ks KeySet) (Cipher, error)
	Decrypt(ct Cipher, ks KeySet) (Plain, error)
	Decode(pt Plain) ([]T, error)
	Add(a, b Operand[T]) (Cipher, error)
	Sub(a, b Operand[T]) (Cipher, error)
	Mul(a, b Operand[T]) (Cipher, error)
	// Div implements OpDiv, legal only on the small-int backend (the
	// only scheme with a native integer-division evaluator); the CKKS
	// and BFV adapters return errs.UnsupportedOperand, since a Dag
	// using Div always has ShortInt set and is never routed to them
	// by the scheme dispatcher.
	Div(a, b Operand[T]) (Cipher, error)
	Negate(a Cipher) (Cipher, error)
	RotateLeft(a Cipher, k int) (Cipher, error)
	RotateRight(a Cipher, k int) (Cipher, error)
	Relinearize(a Cipher) (Cipher, error)
	Rescale(a Cipher, divisorBits int) (Cipher, error)
	ModSwitch(a Cipher) (Cipher, error)
	Bootstrap(a Cipher) (Cipher, error)
	// MarshalCipher/UnmarshalCipher serialize a single ciphertext to the
	// backend library's own binary form, used by the session layer's
	// Input/Output wire messages (§4.7, §6) so a ciphertext produced by
	// one process's Execute can be carried to another process's Decrypt
	// without re-deriving keys (the DagGroup end-to-end scenario, §8
	// scenario 6). Scale/Level travel alongside in the wire message
	// (serialize.wireValuation's sibling fields), not inside this blob.
	MarshalCipher(a Cipher) ([]byte, error)
	UnmarshalCipher(data []byte, scale uint64, level int) (Cipher, error)
	// MarshalSecretKey/UnmarshalSecretKey round-trip only the secret
	// key a KeySet carries, for save_keys_to_string's scoped-down
	// best-effort form (§6, see DESIGN.md): enough to decrypt a
	// ciphertext carried over from another process, but not a full
	// reconstruction of the public/relinearization/Galois/bootstrapping
	// key material GenKeys also produced.
	MarshalSecretKey(ks KeySet) ([]byte, error)
	UnmarshalSecretKey(data []byte) (KeySet, error)
}
