package params

// securityTable maps a tabulated polynomial degree N to the maximum
// total coefficient-modulus bit-width the standard parameter sets allow
// at a given (security level, quantum-safety) pair, mirroring the
// public homomorphicencryption.org security-standard tables. Six
// tables: {128,192,256} x {classical, quantum-safe}.
type securityTable map[int]int

var classical128 = securityTable{1024: 27, 2048: 54, 4096: 109, 8192: 218, 16384: 438, 32768: 881}
var classical192 = securityTable{1024: 19, 2048: 37, 4096: 75, 8192: 152, 16384: 305, 32768: 611}
var classical256 = securityTable{1024: 14, 2048: 29, 4096: 58, 8192: 118, 16384: 237, 32768: 476}

var quantum128 = securityTable{1024: 25, 2048: 51, 4096: 101, 8192: 202, 16384: 411, 32768: 827}
var quantum192 = securityTable{1024: 17, 2048: 35, 4096: 70, 8192: 141, 16384: 284, 32768: 571}
var quantum256 = securityTable{1024: 13, 2048: 27, 4096: 54, 8192: 109, 16384: 220, 32768: 443}

// tableFor selects one of the six tables for (level, quantumSafe).
func tableFor(level int, quantumSafe bool) securityTable {
	switch {
	case level <= 128 && !quantumSafe:
		return classical128
	case level <= 128 && quantumSafe:
		return quantum128
	case level <= 192 && !quantumSafe:
		return classical192
	case level <= 192 && quantumSafe:
		return quantum192
	case !quantumSafe:
		return classical256
	default:
		return quantum256
	}
}

// orderedDegrees lists the degrees every table shares, smallest first.
var orderedDegrees = []int{1024, 2048, 4096, 8192, 16384, 32768}
