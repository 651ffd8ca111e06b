package dag

// Type tags the value a Node computes at runtime: an encrypted
// ciphertext, an encoded-but-unencrypted plaintext, or a raw,
// never-encoded vector (e.g. folded constants).
type Type uint8

const (
	Undef Type = iota
	Cipher
	Raw
	Plain
)

func (t Type) String() string {
	switch t {
	case Cipher:
		return "Cipher"
	case Raw:
		return "Raw"
	case Plain:
		return "Plain"
	default:
		return "Undef"
	}
}

// Combine implements the TypeHandler propagation rule of §4.3 P2: if
// any operand is Cipher the result is Cipher; else if any is Plain the
// result is Plain; else Raw.
func Combine(operands []Type) Type {
	sawPlain := false
	for _, t := range operands {
		if t == Cipher {
			return Cipher
		}
		if t == Plain {
			sawPlain = true
		}
	}
	if sawPlain {
		return Plain
	}
	return Raw
}
