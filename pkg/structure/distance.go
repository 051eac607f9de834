package structure

// Approximate matching primitives for marker re-synchronization. The
// scan compares millions of windows, so the Levenshtein computation
// carries an early cutoff: windows far beyond tolerance cost O(n)
// instead of O(n^2).

// Hamming returns the number of differing byte positions between two
// equal-length slices, or -1 if the lengths differ.
func Hamming(a, b []byte) int {
	if len(a) != len(b) {
		return -1
	}
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// Levenshtein returns the edit distance between a and b, capped at max:
// any distance above max is reported as max+1. Since a substitution
// costs 1, Hamming distance is an upper bound on the edit distance, so
// callers can fast-accept a window whose Hamming distance is already
// within tolerance.
func Levenshtein(a, b []byte, max int) int {
	if max < 0 {
		max = 0
	}
	// Length difference alone is a lower bound.
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return max + 1
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := prev[j-1] + cost
			if d := prev[j] + 1; d < v {
				v = d
			}
			if d := cur[j-1] + 1; d < v {
				v = d
			}
			cur[j] = v
			if v < rowMin {
				rowMin = v
			}
		}
		// Every later row only grows, so once the whole row exceeds the
		// cap the final distance must too.
		if rowMin > max {
			return max + 1
		}
		prev, cur = cur, prev
	}
	if prev[len(b)] > max {
		return max + 1
	}
	return prev[len(b)]
}
