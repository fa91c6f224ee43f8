// Package contfrac finds rational approximations through continued fraction
// expansions. Order finding uses it to turn a measured phase c/q into a
// candidate period.
package contfrac

import (
	"fmt"
	"math"
	"math/big"

	"github.com/pkg/errors"
)

// Epsilon is the fractional part below which a float expansion is taken to
// have terminated. It has to stay well under 1/maxDen² for the denominators
// order finding works with (maxDen < 2^16 there).
const Epsilon = 1e-9

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrEmptyExpansion = errors.New("continued fraction expansion is empty")
)

// Fraction is Num/Den with Den > 0.
type Fraction struct {
	Num uint64
	Den uint64
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

func (f Fraction) Float64() float64 { return float64(f.Num) / float64(f.Den) }

// FromExpansion folds [a0; a1, ..., ak] back into a single fraction:
// fold([a]) = a/1 and fold([a0, rest...]) = a0 + 1/fold(rest).
func FromExpansion(expansion []uint64) (Fraction, error) {
	if len(expansion) == 0 {
		return Fraction{}, ErrEmptyExpansion
	}
	k := len(expansion) - 1
	num, den := expansion[k], uint64(1)
	for i := k - 1; i >= 0; i-- {
		num, den = expansion[i]*num+den, num
	}
	return Fraction{Num: num, Den: den}, nil
}

// Expand returns the complete expansion of num/den.
func Expand(num, den uint64) ([]uint64, error) {
	if den == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "zero denominator")
	}
	var out []uint64
	for den != 0 {
		out = append(out, num/den)
		num, den = den, num%den
	}
	return out, nil
}

// convergents tracks h/k for an expansion being built term by term.
type convergents struct {
	prev, cur Fraction
}

func newConvergents() *convergents {
	// h_{-1}/k_{-1} = 1/0 and h_{-2}/k_{-2} = 0/1
	return &convergents{prev: Fraction{Num: 0, Den: 1}, cur: Fraction{Num: 1, Den: 0}}
}

func (c *convergents) push(a uint64) Fraction {
	next := Fraction{Num: a*c.cur.Num + c.prev.Num, Den: a*c.cur.Den + c.prev.Den}
	c.prev, c.cur = c.cur, next
	return next
}

// backOff runs the semiconvergent search once the last convergent cur went
// over maxDen: start from the convergent before prev and add prev while the
// denominator stays within bounds. A semiconvergent that ends up further
// from the target than prev loses to prev.
func backOff(beforePrev, prev Fraction, maxDen uint64, closer func(a, b Fraction) bool) Fraction {
	f := beforePrev
	for f.Den+prev.Den <= maxDen {
		f.Num += prev.Num
		f.Den += prev.Den
	}
	if f.Den == 0 || closer(prev, f) {
		return prev
	}
	return f
}

// NearestFraction approximates v by the continued fraction convergent (or
// semiconvergent) with denominator at most maxDen. When the expansion has to
// be cut short it returns whichever of the largest fitting semiconvergent and
// the previous convergent lies closer to v, rather than always the
// semiconvergent.
func NearestFraction(v float64, maxDen uint64) (Fraction, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Fraction{}, errors.Wrapf(ErrInvalidInput, "value must be a finite number >= 0; found %v", v)
	}
	if v >= 1<<62 {
		return Fraction{}, errors.Wrapf(ErrInvalidInput, "value %v is too large", v)
	}
	if maxDen < 1 {
		return Fraction{}, errors.Wrapf(ErrInvalidInput, "max denominator must be >= 1; found %d", maxDen)
	}

	conv := newConvergents()
	var beforePrev Fraction
	cur := v
	for {
		ip := math.Floor(cur)
		frac := cur - ip
		beforePrev = conv.prev
		f := conv.push(uint64(ip))
		if frac < Epsilon || f.Den >= maxDen {
			break
		}
		cur = 1 / frac
	}

	if conv.cur.Den <= maxDen {
		return conv.cur, nil
	}
	closer := func(a, b Fraction) bool {
		return math.Abs(a.Float64()-v) <= math.Abs(b.Float64()-v)
	}
	return backOff(beforePrev, conv.prev, maxDen, closer), nil
}

// NearestRational is NearestFraction for the exact rational num/den, with the
// same closer-of choice when the expansion is cut short. Euclid's algorithm
// replaces floating point, so no tolerance is involved.
func NearestRational(num, den, maxDen uint64) (Fraction, error) {
	if den == 0 {
		return Fraction{}, errors.Wrap(ErrInvalidInput, "zero denominator")
	}
	if maxDen < 1 {
		return Fraction{}, errors.Wrapf(ErrInvalidInput, "max denominator must be >= 1; found %d", maxDen)
	}

	conv := newConvergents()
	var beforePrev Fraction
	n, d := num, den
	for {
		beforePrev = conv.prev
		f := conv.push(n / d)
		n, d = d, n%d
		if d == 0 || f.Den >= maxDen {
			break
		}
	}

	if conv.cur.Den <= maxDen {
		return conv.cur, nil
	}
	target := new(big.Rat).SetFrac(new(big.Int).SetUint64(num), new(big.Int).SetUint64(den))
	closer := func(a, b Fraction) bool {
		return distance(target, a).Cmp(distance(target, b)) <= 0
	}
	return backOff(beforePrev, conv.prev, maxDen, closer), nil
}

func distance(target *big.Rat, f Fraction) *big.Rat {
	r := new(big.Rat).SetFrac(new(big.Int).SetUint64(f.Num), new(big.Int).SetUint64(f.Den))
	r.Sub(r, target)
	return r.Abs(r)
}
