package gf

// Polynomials are coefficient slices over a FieldTables, ordered by
// decreasing degree (index 0 holds the highest-degree term). Operations
// return fresh slices; callers that need a fixed algebraic length (for
// example syndrome polynomials) keep leading zeros by skipping PolyTrim.

// PolyTrim strips leading zero coefficients. The zero polynomial trims
// to an empty slice.
func PolyTrim(p []int) []int {
	i := 0
	for i < len(p) && p[i] == 0 {
		i++
	}
	return p[i:]
}

// PolyAdd returns p + q (term-wise XOR, right-aligned). In GF(2^c)
// subtraction is the same operation.
func PolyAdd(p, q []int) []int {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	r := make([]int, n)
	copy(r[n-len(p):], p)
	for i, c := range q {
		r[i+n-len(q)] ^= c
	}
	return r
}

// PolyScale multiplies every coefficient of p by the scalar s.
func (ft *FieldTables) PolyScale(p []int, s int) []int {
	r := make([]int, len(p))
	for i, c := range p {
		r[i] = ft.Mul(c, s)
	}
	return r
}

// PolyMul returns the product of p and q by schoolbook convolution.
// Terms with a zero coefficient are skipped since zero has no logarithm.
func (ft *FieldTables) PolyMul(p, q []int) []int {
	if len(p) == 0 || len(q) == 0 {
		return nil
	}
	r := make([]int, len(p)+len(q)-1)
	for j, qc := range q {
		if qc == 0 {
			continue
		}
		for i, pc := range p {
			if pc == 0 {
				continue
			}
			r[i+j] ^= ft.exp[ft.log[pc]+ft.log[qc]]
		}
	}
	return r
}

// PolyEval evaluates p at x using Horner's method.
func (ft *FieldTables) PolyEval(p []int, x int) int {
	if len(p) == 0 {
		return 0
	}
	y := p[0]
	for _, c := range p[1:] {
		y = ft.Mul(y, x) ^ c
	}
	return y
}

// PolyDivmod divides dividend by divisor using extended synthetic long
// division, which handles non-monic divisors by normalizing against the
// divisor's leading coefficient. It returns (quotient, remainder), both
// trimmed of leading zeros. Dividing by the zero polynomial fails with
// ErrDivisionByZero.
func (ft *FieldTables) PolyDivmod(dividend, divisor []int) ([]int, []int, error) {
	divisor = PolyTrim(divisor)
	if len(divisor) == 0 {
		return nil, nil, ErrDivisionByZero
	}
	if len(dividend) < len(divisor) {
		return nil, PolyTrim(append([]int(nil), dividend...)), nil
	}

	out := append([]int(nil), dividend...)
	normalizer := divisor[0]
	steps := len(dividend) - (len(divisor) - 1)
	for i := 0; i < steps; i++ {
		coef, err := ft.Div(out[i], normalizer)
		if err != nil {
			return nil, nil, err
		}
		out[i] = coef
		if coef == 0 {
			continue
		}
		for j := 1; j < len(divisor); j++ {
			if divisor[j] != 0 {
				out[i+j] ^= ft.exp[ft.log[divisor[j]]+ft.log[coef]]
			}
		}
	}
	return PolyTrim(out[:steps]), PolyTrim(out[steps:]), nil
}

// PolySynthRem is the fast encode path: synthetic division producing
// only the remainder, assuming the divisor is monic (leading coefficient
// one, which holds for every RS generator polynomial). The remainder is
// returned at its fixed algebraic length of len(divisor)-1 coefficients,
// leading zeros preserved.
func (ft *FieldTables) PolySynthRem(dividend, divisor []int) []int {
	if len(dividend) < len(divisor) {
		r := make([]int, len(divisor)-1)
		copy(r[len(r)-len(dividend):], dividend)
		return r
	}
	out := append([]int(nil), dividend...)
	steps := len(dividend) - (len(divisor) - 1)
	for i := 0; i < steps; i++ {
		coef := out[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(divisor); j++ {
			if divisor[j] != 0 {
				out[i+j] ^= ft.exp[ft.log[divisor[j]]+ft.log[coef]]
			}
		}
	}
	return out[steps:]
}
