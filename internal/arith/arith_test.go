package arith

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModOps(t *testing.T) {
	m := Mod64{11}
	assert.Equal(t, uint64(2), m.Add(8, 5))  // 13 ≡ 2 mod 11
	assert.Equal(t, uint64(9), m.Sub(3, 5))  // -2 ≡ 9 mod 11
	assert.Equal(t, uint64(2), m.Mul(7, 5))  // 35 ≡ 2 mod 11
	assert.Equal(t, uint64(1), m.Pow(2, 10)) // Fermat
	assert.Equal(t, uint64(1), m.Pow(7, 0))

	// operands near 2^63 must not overflow
	big := Mod64{(1 << 63) - 25}
	a := big.P - 1
	assert.Equal(t, uint64(1), big.Mul(a, a)) // (-1)^2
	assert.Equal(t, big.P-2, big.Add(a, a))
}

func TestPowModOfOne(t *testing.T) {
	assert.Equal(t, uint64(0), PowMod(5, 0, 1))
	assert.Equal(t, uint64(4), PowMod(2, 2, 15))
	assert.Equal(t, uint64(1), PowMod(7, 4, 15))
}

func TestGCD(t *testing.T) {
	assert.Equal(t, uint64(3), GCD(6, 15))
	assert.Equal(t, uint64(1), GCD(7, 15))
	assert.Equal(t, uint64(15), GCD(0, 15))
}

func TestModInverse(t *testing.T) {
	cases := []struct{ a, n, want uint64 }{
		{2, 5, 3},
		{3, 5, 2},
		{2, 7, 4},
		{7, 15, 13},
	}
	for _, c := range cases {
		got, err := ModInverse(c.a, c.n)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "inverse of %d mod %d", c.a, c.n)
	}
}

func TestModInverseLaw(t *testing.T) {
	for n := uint64(2); n < 60; n++ {
		for a := uint64(1); a < n; a++ {
			inv, err := ModInverse(a, n)
			if GCD(a, n) != 1 {
				require.True(t, errors.Is(err, ErrNonInvertible), "a=%d n=%d", a, n)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, uint64(1), MulMod(a, inv, n), "a=%d n=%d", a, n)
		}
	}
}

func TestModInverseNotInvertible(t *testing.T) {
	_, err := ModInverse(2, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonInvertible))

	_, err = ModInverse(3, 1)
	assert.True(t, errors.Is(err, ErrNonInvertible))
}

func TestMinBits(t *testing.T) {
	assert.Equal(t, 1, MinBitsForModulus(1))
	assert.Equal(t, 1, MinBitsForModulus(2))
	assert.Equal(t, 2, MinBitsForModulus(3))
	assert.Equal(t, 4, MinBitsForModulus(15))
	assert.Equal(t, 4, MinBitsForModulus(16))

	assert.Equal(t, 1, MinBitsForValue(0))
	assert.Equal(t, 1, MinBitsForValue(1))
	assert.Equal(t, 2, MinBitsForValue(2))
	assert.Equal(t, 64, MinBitsForValue(^uint64(0)))
}

func TestCeilLog2Square(t *testing.T) {
	assert.Equal(t, 4, CeilLog2Square(3))  // q = 16
	assert.Equal(t, 8, CeilLog2Square(15)) // q = 256
	assert.Equal(t, 4, CeilLog2Square(4))  // 16 exactly
	assert.Equal(t, 9, CeilLog2Square(21))
}

func TestNthRoot(t *testing.T) {
	assert.Equal(t, uint64(2), NthRoot(8, 2))
	assert.Equal(t, uint64(3), NthRoot(9, 2))
	assert.Equal(t, uint64(3), NthRoot(27, 3))
	assert.Equal(t, uint64(4294967295), NthRoot(^uint64(0), 2))
}

func TestIntegerRoot(t *testing.T) {
	r, ok := IntegerRoot(0)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), r)
	r, ok = IntegerRoot(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), r)

	_, ok = IntegerRoot(2)
	assert.False(t, ok)
	_, ok = IntegerRoot(15)
	assert.False(t, ok)

	for n, want := range map[uint64]uint64{4: 2, 8: 2, 9: 3, 27: 3, 729: 27, 3125: 5} {
		r, ok := IntegerRoot(n)
		require.True(t, ok, "n=%d", n)
		assert.Equal(t, want, r, "n=%d", n)
	}
}
