// Package config holds process-wide tunables for the compiler: default
// scale, target security level, quantum-safety posture and verbosity.
// Values mirror the bit-exact constants of the specification (§6) and
// can be overridden from flags in the teacher's test-flag idiom
// (flagParamString, flagPrintNoise in the grounding library's test
// files), generalized here for non-test callers.
package config

import (
	"flag"
	"fmt"

	"github.com/fhegraph/hedag/internal/logging"
)

// Security is the target classical/quantum security level in bits.
type Security int

const (
	Security128 Security = 128
	Security192 Security = 192
	Security256 Security = 256
)

// Bit-exact constants from the specification.
const (
	DefaultScale        = 60
	ReduceScale         = 10
	MaxSealBits         = 881
	DefaultQCount       = 3
	MaxMultDepthNoBoot  = 15
	LevelsBeforeBoot    = 6
	MaxCmpNum           = 1024
	CmpP                = 7
	CmpBitLen           = 16
	FFTN                = 16
	CmpDagSize          = 16384
	IYFCFormatVersion   = 1
)

// Config is the set of tunables threaded through compilation.
type Config struct {
	DefaultScale     uint32
	Security         Security
	QuantumSafe      bool
	BootstrapEnabled bool
	Verbose          bool
}

// Default returns the standard configuration: 60-bit scale, 128-bit
// classical security, no quantum-safety margin, bootstrapping off.
func Default() Config {
	return Config{
		DefaultScale: DefaultScale,
		Security:     Security128,
		QuantumSafe:  false,
		Verbose:      true,
	}
}

// Apply installs this configuration's verbosity into the process-wide
// logger. Compilation-affecting fields (scale, security) are read
// directly by params.Select and are not "applied" globally.
func (c Config) Apply() {
	logging.Verbose = c.Verbose
}

// FromFlags registers this configuration's fields on fs and returns a
// pointer that is populated once fs.Parse has run, matching the
// teacher's per-test flag.String/flag.Bool pattern used across
// schemes/ckks and schemes/bfv test files.
func FromFlags(fs *flag.FlagSet) *Config {
	c := Default()
	fs.Var(scaleFlag{&c.DefaultScale}, "default-scale", "default CKKS rescale divisor in bits")
	fs.Var(securityFlag{&c.Security}, "security", "target security level: 128, 192 or 256")
	fs.BoolVar(&c.QuantumSafe, "quantum-safe", false, "require post-quantum parameter tables")
	fs.BoolVar(&c.BootstrapEnabled, "bootstrap", false, "enable OpenFHE-CKKS bootstrapping")
	fs.BoolVar(&c.Verbose, "verbose", true, "log compiler warnings")
	return &c
}

type scaleFlag struct{ v *uint32 }

func (f scaleFlag) String() string { return "" }
func (f scaleFlag) Set(s string) error {
	var n uint32
	if _, err := fmt.Sscan(s, &n); err != nil {
		return err
	}
	*f.v = n
	return nil
}

type securityFlag struct{ v *Security }

func (f securityFlag) String() string { return "" }
func (f securityFlag) Set(s string) error {
	var n int
	if _, err := fmt.Sscan(s, &n); err != nil {
		return err
	}
	*f.v = Security(n)
	return nil
}
