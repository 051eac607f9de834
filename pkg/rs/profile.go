package rs

import (
	"fmt"

	"github.com/bulwarkecc/bulwark/pkg/gf"
)

// Profile selects one of the historical codec parameter sets. The
// profiles are not different algorithms, only different
// (generator, prime polynomial, fcr) tuples over GF(2^8); profiles 1-3
// are wire-compatible with each other, profile 4 follows the US FAA
// ADSB UAT FEC standard and is incompatible with the first three.
type Profile int

const (
	ProfileBase3     Profile = 1
	ProfileBase3Alt  Profile = 2
	ProfileBase3Fast Profile = 3
	ProfileUAT       Profile = 4
)

// Valid reports whether p names a known profile.
func (p Profile) Valid() bool { return p >= ProfileBase3 && p <= ProfileUAT }

// FieldParams returns the (generator, primePoly, fcr, cExp) tuple for
// the profile.
func (p Profile) FieldParams() (generator, primePoly, fcr, cExp int) {
	switch p {
	case ProfileBase3, ProfileBase3Alt, ProfileBase3Fast:
		return 3, 0x11b, 1, 8
	case ProfileUAT:
		return 2, 0x187, 120, 8
	default:
		return 0, 0, 0, 0
	}
}

// Description returns a human-readable summary of the profile, written
// into the ecc file comment header so the parameters survive even if
// this program is lost.
func (p Profile) Description() string {
	switch p {
	case ProfileBase3, ProfileBase3Alt, ProfileBase3Fast:
		return "Reed-Solomon over GF(2^8), generator 3, polynomial 0x11b, fcr 1"
	case ProfileUAT:
		return "Reed-Solomon over GF(2^8), US FAA ADSB UAT standard, generator 2, polynomial 0x187, fcr 120"
	default:
		return fmt.Sprintf("unknown profile %d", int(p))
	}
}

// Field builds the lookup tables for the profile.
func (p Profile) Field() (*gf.FieldTables, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown codec profile %d", ErrBadParams, int(p))
	}
	generator, prim, _, cExp := p.FieldParams()
	return gf.NewFieldTables(generator, prim, cExp)
}
