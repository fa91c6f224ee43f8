// Package arith holds the integer helpers shared by circuit synthesis and the
// classical half of Shor's algorithm: modular arithmetic on uint64, modular
// inverses, integer roots and register sizing.
package arith

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// ErrNonInvertible is returned when a value has no inverse modulo n.
var ErrNonInvertible = errors.New("value is not invertible")

// Mod64 is arithmetic modulo P for P < 2^63.
type Mod64 struct{ P uint64 }

func (m Mod64) Add(a, b uint64) uint64 {
	c := a + b
	if c >= m.P || c < a {
		c -= m.P
	}
	return c
}

func (m Mod64) Sub(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return a + m.P - b
}

func (m Mod64) Mul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	// (hi,lo) mod P; hi < P holds whenever a, b < P
	_, r := bits.Div64(hi%m.P, lo, m.P)
	return r
}

func (m Mod64) Pow(a, e uint64) uint64 {
	res := 1 % m.P
	base := a % m.P
	for e > 0 {
		if e&1 == 1 {
			res = m.Mul(res, base)
		}
		base = m.Mul(base, base)
		e >>= 1
	}
	return res
}

// PowMod returns x^e mod n. n must be non-zero.
func PowMod(x, e, n uint64) uint64 { return Mod64{n}.Pow(x, e) }

// MulMod returns a*b mod n without overflowing.
func MulMod(a, b, n uint64) uint64 { return Mod64{n}.Mul(a%n, b%n) }

// GCD is Euclid's algorithm; GCD(0, n) == n.
func GCD(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ModInverse returns t with a*t ≡ 1 (mod n) using the extended Euclidean
// algorithm. n must be at least 2 and below 2^62.
func ModInverse(a, n uint64) (uint64, error) {
	if n < 2 {
		return 0, errors.Wrapf(ErrNonInvertible, "modulus %d", n)
	}
	t, newT := int64(0), int64(1)
	r, newR := n, a%n
	for newR != 0 {
		q := r / newR
		t, newT = newT, t-int64(q)*newT
		r, newR = newR, r-q*newR
	}
	if r > 1 {
		return 0, errors.Wrapf(ErrNonInvertible, "%d modulo %d", a, n)
	}
	if t < 0 {
		t += int64(n)
	}
	return uint64(t), nil
}

// MinBitsForModulus is the number of bits needed to hold any value in
// [0, modulus). A modulus of 0 or 1 still needs one bit.
func MinBitsForModulus(modulus uint64) int {
	if modulus <= 1 {
		return 1
	}
	return bits.Len64(modulus - 1)
}

// MinBitsForValue is the number of bits needed to represent value itself.
func MinBitsForValue(value uint64) int {
	if value == math.MaxUint64 {
		return 64
	}
	return MinBitsForModulus(value + 1)
}

// CeilLog2Square returns ceil(2*log2(n)), i.e. the exponent of the smallest
// power of two that is >= n². n must be below 2^32.
func CeilLog2Square(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n*n - 1)
}

// checkedPow is b^e; ok is false when the result overflows uint64.
func checkedPow(b uint64, e int) (uint64, bool) {
	res := uint64(1)
	for i := 0; i < e; i++ {
		hi, lo := bits.Mul64(res, b)
		if hi != 0 {
			return 0, false
		}
		res = lo
	}
	return res, true
}

// NthRoot returns floor(n^(1/j)) for j >= 1.
func NthRoot(n uint64, j int) uint64 {
	if j <= 1 || n < 2 {
		return n
	}
	r := uint64(math.Pow(float64(n), 1/float64(j)))
	for r > 0 {
		if p, ok := checkedPow(r, j); ok && p <= n {
			break
		}
		r--
	}
	for {
		p, ok := checkedPow(r+1, j)
		if !ok || p > n {
			return r
		}
		r++
	}
}

// IntegerRoot searches for the smallest j >= 2 such that n is an exact j-th
// power and returns that root. 0 and 1 are their own roots.
func IntegerRoot(n uint64) (uint64, bool) {
	if n < 2 {
		return n, true
	}
	for j := 2; j < 64; j++ {
		root := NthRoot(n, j)
		// higher roots only shrink toward one
		if root < 2 {
			break
		}
		if p, ok := checkedPow(root, j); ok && p == n {
			return root, true
		}
	}
	return 0, false
}
