// Package statevec is an exact dense state-vector executor for small
// circuits.
package statevec

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"

	"qfactor/internal/circuit"
)

// BytesPerAmplitude is the size of one complex128.
const BytesPerAmplitude = 16

// HardMaxQubits bounds the width regardless of memory.
const HardMaxQubits = 34

var ErrTooLarge = errors.New("circuit too large to simulate")

// State is the amplitude vector of a width-qubit register. Amplitude i
// belongs to the basis state whose bit q is the value of qubit q.
type State struct {
	amps  []complex128
	width int
}

// NewState returns |0...0> over width qubits.
func NewState(width int) (*State, error) {
	if width < 0 || width > HardMaxQubits {
		return nil, errors.Wrapf(ErrTooLarge, "%d qubits", width)
	}
	amps := make([]complex128, 1<<uint(width))
	amps[0] = 1
	return &State{amps: amps, width: width}, nil
}

// NewBasisState returns |index> over width qubits.
func NewBasisState(width int, index uint64) (*State, error) {
	s, err := NewState(width)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(s.amps)) {
		return nil, errors.Errorf("basis index %d outside %d qubits", index, width)
	}
	s.amps[0] = 0
	s.amps[index] = 1
	return s, nil
}

func (s *State) Width() int { return s.width }

func (s *State) Amplitude(index uint64) complex128 { return s.amps[index] }

// Run applies every instruction of op.
func (s *State) Run(op circuit.Op) {
	circuit.Walk(op, s.Apply)
}

// Apply applies one instruction. Only basis states with every control bit
// set are touched.
func (s *State) Apply(in circuit.Instruction) {
	var mask int
	for _, c := range in.Controls {
		mask |= 1 << uint(c)
	}
	n := len(s.amps)

	switch in.Kind {
	case circuit.H:
		bit := 1 << uint(in.Targets[0])
		h := complex(1/math.Sqrt2, 0)
		for i := 0; i < n; i++ {
			if i&bit != 0 || i&mask != mask {
				continue
			}
			j := i | bit
			a, b := s.amps[i], s.amps[j]
			s.amps[i], s.amps[j] = h*(a+b), h*(a-b)
		}
	case circuit.X:
		bit := 1 << uint(in.Targets[0])
		for i := 0; i < n; i++ {
			if i&bit != 0 || i&mask != mask {
				continue
			}
			j := i | bit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	case circuit.Phase:
		bit := 1 << uint(in.Targets[0])
		f := cmplx.Exp(complex(0, in.Angle))
		mask |= bit
		for i := 0; i < n; i++ {
			if i&mask == mask {
				s.amps[i] *= f
			}
		}
	case circuit.Swap:
		a, b := 1<<uint(in.Targets[0]), 1<<uint(in.Targets[1])
		for i := 0; i < n; i++ {
			if i&a == 0 || i&b != 0 || i&mask != mask {
				continue
			}
			j := i ^ a ^ b
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// Probabilities returns the marginal distribution of reg's value.
func (s *State) Probabilities(reg circuit.Register) []float64 {
	out := make([]float64, 1<<uint(reg.Width))
	for i, a := range s.amps {
		p := real(a)*real(a) + imag(a)*imag(a)
		if p == 0 {
			continue
		}
		out[reg.Value(uint64(i))] += p
	}
	return out
}

// Norm is the sum of squared amplitude magnitudes; 1 up to rounding.
func (s *State) Norm() float64 {
	var sum float64
	for _, a := range s.amps {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return sum
}
