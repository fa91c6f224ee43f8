// Package synth compiles reversible modular arithmetic into gate trees using
// Draper's Fourier-basis addition. Every builder returns a circuit.Sequence
// over local wires 0..width-1; callers place it with circuit.Place.
//
// Register convention is little-endian: local wire i of a data register holds
// the bit of weight 2^i.
package synth

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qfactor/internal/arith"
	"qfactor/internal/circuit"
	"qfactor/internal/metrics"
)

// DefaultCacheSize bounds the number of memoized sub-circuits.
const DefaultCacheSize = 1024

type kind uint8

const (
	kindQFT kind = iota
	kindFixedAdder
	kindModularAdder
	kindPartialMultiplier
	kindModularMultiplier
	kindExponentiator
)

type key struct {
	kind kind
	w, e int
	c, n uint64
}

// Synthesizer builds sub-circuits and memoizes them per (kind, width, c, n).
// It is safe for concurrent use.
type Synthesizer struct {
	cache   *lru.Cache[key, circuit.Sequence]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// direct builds without memoization; it backs the package-level functions.
var direct = &Synthesizer{logger: zap.NewNop()}

// Default returns the shared Synthesizer without memoization.
func Default() *Synthesizer { return direct }

// New returns a memoizing Synthesizer holding at most size sub-circuits.
func New(size int, logger *zap.Logger) (*Synthesizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[key, circuit.Sequence](size)
	if err != nil {
		return nil, errors.Wrap(err, "create synthesis cache")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		cache:   cache,
		logger:  logger.Named("synth"),
		metrics: metrics.Get(),
	}, nil
}

func (s *Synthesizer) memo(k key, build func() (circuit.Sequence, error)) (circuit.Sequence, error) {
	if s.cache == nil {
		return build()
	}
	if seq, ok := s.cache.Get(k); ok {
		s.metrics.SynthCacheTotal.WithLabelValues("hit").Inc()
		return seq, nil
	}
	s.metrics.SynthCacheTotal.WithLabelValues("miss").Inc()
	seq, err := build()
	if err != nil {
		return circuit.Sequence{}, err
	}
	s.cache.Add(k, seq)
	return seq, nil
}

// Len reports how many sub-circuits are memoized.
func (s *Synthesizer) Len() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// Rk is a phase rotation by 2π/2^k.
func Rk(k int, q int) circuit.Gate {
	return circuit.NewPhase(2*math.Pi/math.Exp2(float64(k)), q)
}

// ReverseQubits swaps wire i with wire w-1-i.
func ReverseQubits(w int) circuit.Sequence {
	seq := circuit.Sequence{Name: fmt.Sprintf("reverse(%d)", w)}
	for i := 0; i < w/2; i++ {
		seq.Ops = append(seq.Ops, circuit.NewSwap(i, w-1-i))
	}
	return seq
}

func QFT(w int) circuit.Sequence { return direct.QFT(w) }

func (s *Synthesizer) QFT(w int) circuit.Sequence {
	seq, _ := s.memo(key{kind: kindQFT, w: w}, func() (circuit.Sequence, error) {
		seq := circuit.Sequence{Name: fmt.Sprintf("qft(%d)", w)}
		for i := w - 1; i >= 0; i-- {
			seq.Ops = append(seq.Ops, circuit.NewH(i))
			for j := i - 1; j >= 0; j-- {
				seq.Ops = append(seq.Ops, circuit.Control(Rk(i-j+1, i), j))
			}
		}
		seq.Ops = append(seq.Ops, ReverseQubits(w))
		return seq, nil
	})
	return seq
}

func InverseQFT(w int) circuit.Sequence { return direct.InverseQFT(w) }

func (s *Synthesizer) InverseQFT(w int) circuit.Sequence {
	return circuit.Inverse(s.QFT(w)).(circuit.Sequence)
}

// FixedAdder maps QFT(b) to QFT((b+c) mod 2^w) on w wires.
func FixedAdder(w int, c uint64) circuit.Sequence { return direct.FixedAdder(w, c) }

func (s *Synthesizer) FixedAdder(w int, c uint64) circuit.Sequence {
	seq, _ := s.memo(key{kind: kindFixedAdder, w: w, c: c}, func() (circuit.Sequence, error) {
		seq := circuit.Sequence{Name: fmt.Sprintf("add(%d)", c)}
		for i := 0; i < w; i++ {
			angle := fixedAdderAngle(w, i, c)
			if angle == 0 {
				continue
			}
			seq.Ops = append(seq.Ops, circuit.NewPhase(angle, i))
		}
		return seq, nil
	})
	return seq
}

// fixedAdderAngle is 2π Σ 2^-(w-i-j) over the set bits j <= w-1-i of c,
// reduced mod 2π. Only the fractional part of each turn matters, so the sum
// is accumulated in turns and wrapped as it goes.
func fixedAdderAngle(w, i int, c uint64) float64 {
	turns := 0.0
	for j := w - 1 - i; j >= 0; j-- {
		if j < 64 && c&(1<<uint(j)) != 0 {
			turns += math.Exp2(-float64(w - i - j))
		}
	}
	turns -= math.Floor(turns)
	return circuit.NormalizeAngle(2 * math.Pi * turns)
}

// CCModularAdder maps QFT(b) to QFT((b+c) mod n) when both controls are set
// and leaves the data untouched otherwise. Requires b < n < 2^w.
//
// Wires: 0, 1 controls; 2..w+2 data (w+1 qubits, Fourier basis, the top
// qubit is the overflow bit); w+3 ancilla, returned to 0.
func CCModularAdder(w int, c, n uint64) circuit.Sequence { return direct.CCModularAdder(w, c, n) }

func (s *Synthesizer) CCModularAdder(w int, c, n uint64) circuit.Sequence {
	c %= n
	seq, _ := s.memo(key{kind: kindModularAdder, w: w, c: c, n: n}, func() (circuit.Sequence, error) {
		data := make([]int, w+1)
		for i := range data {
			data[i] = 2 + i
		}
		msb, anc := w+2, w+3

		addC := circuit.Place(s.FixedAdder(w+1, c), data...)
		addN := circuit.Place(s.FixedAdder(w+1, n), data...)
		qft := circuit.Place(s.QFT(w+1), data...)
		iqft := circuit.Place(s.InverseQFT(w+1), data...)

		seq := circuit.Sequence{
			Name: fmt.Sprintf("ccmodadd(%d mod %d)", c, n),
			Ops: []circuit.Op{
				circuit.Control(addC, 0, 1),
				circuit.Inverse(addN),
				// overflow bit set iff b+c-n went negative
				iqft,
				circuit.CX(msb, anc),
				qft,
				circuit.Control(addN, anc),
				circuit.Control(circuit.Inverse(addC), 0, 1),
				// clear the ancilla: b+c mod n - c is negative iff it was set
				iqft,
				circuit.NewX(msb),
				circuit.CX(msb, anc),
				circuit.NewX(msb),
				qft,
				circuit.Control(addC, 0, 1),
			},
		}
		return seq, nil
	})
	return seq
}

// CPartialMultiplier maps |ctl, a, b, 0> to |ctl, a, (b + c·a) mod n, 0> when
// the control is set. Width 2w+3: control 0, data 1..w, result w+1..2w+1,
// ancilla 2w+2.
func CPartialMultiplier(w int, c, n uint64) circuit.Sequence {
	return direct.CPartialMultiplier(w, c, n)
}

func (s *Synthesizer) CPartialMultiplier(w int, c, n uint64) circuit.Sequence {
	c %= n
	seq, _ := s.memo(key{kind: kindPartialMultiplier, w: w, c: c, n: n}, func() (circuit.Sequence, error) {
		result := make([]int, w+1)
		for i := range result {
			result[i] = w + 1 + i
		}
		anc := 2*w + 2

		seq := circuit.Sequence{Name: fmt.Sprintf("cmul_partial(%d mod %d)", c, n)}
		seq.Ops = append(seq.Ops, circuit.Place(s.QFT(w+1), result...))
		addend := c
		for i := 0; i < w; i++ {
			// the adder's local wires are (control, data_i, result..., ancilla)
			wires := append([]int{0, 1 + i}, result...)
			wires = append(wires, anc)
			seq.Ops = append(seq.Ops, circuit.Place(s.CCModularAdder(w, addend, n), wires...))
			addend = arith.Mod64{P: n}.Add(addend, addend)
		}
		seq.Ops = append(seq.Ops, circuit.Place(s.InverseQFT(w+1), result...))
		return seq, nil
	})
	return seq
}

// CModularMultiplier maps |ctl, a, 0> to |ctl, c·a mod n, 0> when the control
// is set, using the same 2w+3 layout as CPartialMultiplier. c must be
// invertible modulo n.
func CModularMultiplier(w int, c, n uint64) (circuit.Sequence, error) {
	return direct.CModularMultiplier(w, c, n)
}

func (s *Synthesizer) CModularMultiplier(w int, c, n uint64) (circuit.Sequence, error) {
	c %= n
	return s.memo(key{kind: kindModularMultiplier, w: w, c: c, n: n}, func() (circuit.Sequence, error) {
		inv, err := arith.ModInverse(c, n)
		if err != nil {
			return circuit.Sequence{}, errors.Wrapf(err, "modular multiplier by %d", c)
		}
		seq := circuit.Sequence{Name: fmt.Sprintf("cmul(%d mod %d)", c, n)}
		seq.Ops = append(seq.Ops, s.CPartialMultiplier(w, c, n))
		for i := 0; i < w; i++ {
			seq.Ops = append(seq.Ops, circuit.CSwap(0, 1+i, 1+w+i))
		}
		seq.Ops = append(seq.Ops, circuit.Inverse(s.CPartialMultiplier(w, inv, n)))
		return seq, nil
	})
}

// ModularExponentiator maps |a, 0> to |a, x^a mod n> over width e+2w+2: the
// exponent on wires 0..e-1, the result on e..e+w-1, then w+2 ancillas.
func ModularExponentiator(e, w int, x, n uint64) (circuit.Sequence, error) {
	return direct.ModularExponentiator(e, w, x, n)
}

func (s *Synthesizer) ModularExponentiator(e, w int, x, n uint64) (circuit.Sequence, error) {
	x %= n
	return s.memo(key{kind: kindExponentiator, e: e, w: w, c: x, n: n}, func() (circuit.Sequence, error) {
		s.logger.Debug("synthesizing exponentiator",
			zap.Int("exponent_qubits", e),
			zap.Int("base_qubits", w),
			zap.Uint64("x", x),
			zap.Uint64("n", n),
		)
		tail := make([]int, 2*w+2)
		for i := range tail {
			tail[i] = e + i
		}

		seq := circuit.Sequence{Name: fmt.Sprintf("modexp(%d mod %d)", x, n)}
		seq.Ops = append(seq.Ops, circuit.NewX(e))
		factor := x
		for i := 0; i < e; i++ {
			mul, err := s.CModularMultiplier(w, factor, n)
			if err != nil {
				return circuit.Sequence{}, err
			}
			seq.Ops = append(seq.Ops, circuit.Place(mul, append([]int{i}, tail...)...))
			factor = arith.MulMod(factor, factor, n)
		}
		return seq, nil
	})
}
