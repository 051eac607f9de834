// Package gf implements arithmetic over Galois fields GF(2^c) using
// precomputed exponent and logarithm tables, plus polynomial algebra
// over those fields. Tables are immutable once built and safe to share
// across goroutines.
package gf

import (
	"errors"
	"fmt"
)

var (
	// ErrBadFieldParams means the generator and prime polynomial do not
	// jointly enumerate every non-zero field element exactly once.
	ErrBadFieldParams = errors.New("gf: invalid field parameters")

	// ErrDivisionByZero is returned on division or inversion of zero.
	ErrDivisionByZero = errors.New("gf: division by zero")
)

// FieldTables holds the lookup tables for one GF(2^c) parametrization.
// The zero element has no logarithm; log[0] is kept at -1 and never read.
type FieldTables struct {
	Generator int
	PrimePoly int
	CExp      int

	size  int // 2^c
	order int // 2^c - 1, the multiplicative order
	exp   []int
	log   []int
}

// NewFieldTables builds and verifies the exp/log tables for the field
// defined by (generator, primePoly, cExp). A generator/polynomial pair
// that produces a duplicate or out-of-range element is rejected with
// ErrBadFieldParams.
func NewFieldTables(generator, primePoly, cExp int) (*FieldTables, error) {
	if cExp < 2 || cExp > 16 {
		return nil, fmt.Errorf("%w: characteristic exponent %d out of range [2,16]", ErrBadFieldParams, cExp)
	}
	size := 1 << uint(cExp)
	order := size - 1
	if generator < 2 || generator >= size {
		return nil, fmt.Errorf("%w: generator %d not a field element", ErrBadFieldParams, generator)
	}
	if primePoly <= size || primePoly >= size<<1 {
		return nil, fmt.Errorf("%w: prime polynomial %#x has wrong degree for GF(2^%d)", ErrBadFieldParams, primePoly, cExp)
	}

	ft := &FieldTables{
		Generator: generator,
		PrimePoly: primePoly,
		CExp:      cExp,
		size:      size,
		order:     order,
		// Doubled exponent table so hot paths can skip one modulo.
		exp: make([]int, 2*order),
		log: make([]int, size),
	}
	for i := range ft.log {
		ft.log[i] = -1
	}

	x := 1
	for i := 0; i < order; i++ {
		if x <= 0 || x >= size {
			return nil, fmt.Errorf("%w: element %d overflows the field", ErrBadFieldParams, x)
		}
		if ft.log[x] != -1 {
			return nil, fmt.Errorf("%w: element %d generated twice", ErrBadFieldParams, x)
		}
		ft.exp[i] = x
		ft.log[x] = i
		x = mulNoLUT(x, generator, primePoly, size)
	}
	// A true generator cycles back to 1 after exactly 2^c - 1 steps.
	if x != 1 {
		return nil, fmt.Errorf("%w: generator %d does not span the field", ErrBadFieldParams, generator)
	}
	for i := order; i < 2*order; i++ {
		ft.exp[i] = ft.exp[i-order]
	}
	return ft, nil
}

// mulNoLUT multiplies two field elements by carry-less (Russian
// peasant) multiplication with modular reduction by the prime
// polynomial. Only used during table construction.
func mulNoLUT(a, b, prim, size int) int {
	r := 0
	for b > 0 {
		if b&1 != 0 {
			r ^= a
		}
		b >>= 1
		a <<= 1
		if a&size != 0 {
			a ^= prim
		}
	}
	return r
}

// Size returns the number of field elements, 2^c.
func (ft *FieldTables) Size() int { return ft.size }

// Order returns the multiplicative order of the field, 2^c - 1.
func (ft *FieldTables) Order() int { return ft.order }

// Add returns a + b. Addition and subtraction in GF(2^c) are both XOR.
func Add(a, b int) int { return a ^ b }

// Exp returns generator^e, for any integer e (reduced modulo the order).
func (ft *FieldTables) Exp(e int) int {
	e %= ft.order
	if e < 0 {
		e += ft.order
	}
	return ft.exp[e]
}

// Log returns the discrete logarithm of a non-zero element.
func (ft *FieldTables) Log(a int) (int, error) {
	if a == 0 {
		return 0, fmt.Errorf("%w: log of zero", ErrDivisionByZero)
	}
	return ft.log[a], nil
}

// Mul returns a * b.
func (ft *FieldTables) Mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return ft.exp[ft.log[a]+ft.log[b]]
}

// Div returns a / b, failing on a zero divisor.
func (ft *FieldTables) Div(a, b int) (int, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	if a == 0 {
		return 0, nil
	}
	return ft.exp[(ft.log[a]-ft.log[b]+ft.order)%ft.order], nil
}

// Inverse returns the multiplicative inverse of a non-zero element.
func (ft *FieldTables) Inverse(a int) (int, error) {
	if a == 0 {
		return 0, fmt.Errorf("%w: inverse of zero", ErrDivisionByZero)
	}
	return ft.exp[ft.order-ft.log[a]], nil
}

// Pow returns a^e. Zero raised to a positive power is zero; any element
// raised to the zeroth power is one.
func (ft *FieldTables) Pow(a, e int) int {
	if a == 0 {
		if e == 0 {
			return 1
		}
		return 0
	}
	idx := (ft.log[a] * e) % ft.order
	if idx < 0 {
		idx += ft.order
	}
	return ft.exp[idx]
}
