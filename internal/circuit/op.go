// Package circuit models reversible circuits as immutable operation trees.
//
// An operation is one of four variants:
//
//	Gate        an elementary H, X, Phase or Swap on local wires
//	Controlled  an operation that only acts when every control wire is 1
//	Sequence    operations applied in order
//	Placed      a sub-circuit whose local wires 0..k-1 are mapped onto
//	            the parent's wires
//
// Inverse and Control are pure structural transforms; Walk and Flatten lower
// a tree to absolute instructions for an executor.
package circuit

import (
	"fmt"
	"math"
)

// Kind identifies an elementary gate.
type Kind uint8

const (
	H Kind = iota
	X
	Phase
	Swap
)

var kindName = map[Kind]string{
	H:     "h",
	X:     "x",
	Phase: "p",
	Swap:  "swap",
}

func (k Kind) String() string {
	if s, ok := kindName[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// arity is the number of target wires a gate kind acts on.
func (k Kind) arity() int {
	if k == Swap {
		return 2
	}
	return 1
}

// Op is an operation tree node. The concrete types are Gate, Controlled,
// Sequence and Placed.
type Op interface {
	isOp()
}

type Gate struct {
	Kind    Kind
	Angle   float64 // Phase only, in [0, 2π)
	Targets []int
}

type Controlled struct {
	Controls []int
	Inner    Op
}

type Sequence struct {
	Name string
	Ops  []Op
}

type Placed struct {
	Wires []int
	Inner Op
}

func (Gate) isOp()       {}
func (Controlled) isOp() {}
func (Sequence) isOp()   {}
func (Placed) isOp()     {}

// NormalizeAngle reduces theta into [0, 2π).
func NormalizeAngle(theta float64) float64 {
	r := math.Mod(theta, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	if r >= 2*math.Pi {
		r = 0
	}
	return r
}

func NewH(q int) Gate { return Gate{Kind: H, Targets: []int{q}} }

func NewX(q int) Gate { return Gate{Kind: X, Targets: []int{q}} }

func NewPhase(theta float64, q int) Gate {
	return Gate{Kind: Phase, Angle: NormalizeAngle(theta), Targets: []int{q}}
}

func NewSwap(a, b int) Gate { return Gate{Kind: Swap, Targets: []int{a, b}} }

// CX is a NOT on target controlled by control.
func CX(control, target int) Controlled {
	return Controlled{Controls: []int{control}, Inner: NewX(target)}
}

// CPhase is a phase rotation on target controlled by control.
func CPhase(theta float64, control, target int) Controlled {
	return Controlled{Controls: []int{control}, Inner: NewPhase(theta, target)}
}

// CSwap is a Fredkin gate.
func CSwap(control, a, b int) Controlled {
	return Controlled{Controls: []int{control}, Inner: NewSwap(a, b)}
}

// Place maps a sub-circuit's local wires onto wires of the enclosing circuit.
func Place(inner Op, wires ...int) Placed {
	return Placed{Wires: append([]int(nil), wires...), Inner: inner}
}

// Inverse returns the adjoint of op: sequences are reversed and every phase
// angle negated. H, X and Swap are their own inverses.
func Inverse(op Op) Op {
	switch o := op.(type) {
	case Gate:
		if o.Kind == Phase {
			return Gate{Kind: Phase, Angle: NormalizeAngle(-o.Angle), Targets: o.Targets}
		}
		return o
	case Controlled:
		return Controlled{Controls: o.Controls, Inner: Inverse(o.Inner)}
	case Sequence:
		ops := make([]Op, len(o.Ops))
		for i, inner := range o.Ops {
			ops[len(o.Ops)-1-i] = Inverse(inner)
		}
		return Sequence{Name: inverseName(o.Name), Ops: ops}
	case Placed:
		return Placed{Wires: o.Wires, Inner: Inverse(o.Inner)}
	}
	panic(fmt.Sprintf("circuit: unknown op %T", op))
}

func inverseName(name string) string {
	const suffix = "_dg"
	if name == "" {
		return ""
	}
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name + suffix
}

// Control adds control wires to op. Nested controls are merged into one
// Controlled node.
func Control(op Op, controls ...int) Op {
	if len(controls) == 0 {
		return op
	}
	if c, ok := op.(Controlled); ok {
		merged := make([]int, 0, len(controls)+len(c.Controls))
		merged = append(merged, controls...)
		merged = append(merged, c.Controls...)
		return Controlled{Controls: merged, Inner: c.Inner}
	}
	return Controlled{Controls: append([]int(nil), controls...), Inner: op}
}

// Instruction is a gate with absolute wire indices, produced by Walk.
type Instruction struct {
	Kind     Kind
	Angle    float64
	Targets  []int
	Controls []int
}

// Walk visits every elementary gate of op in application order with wires
// resolved to the outermost frame.
func Walk(op Op, fn func(Instruction)) {
	walk(op, nil, nil, fn)
}

func walk(op Op, wires, controls []int, fn func(Instruction)) {
	resolve := func(qs []int) []int {
		out := make([]int, len(qs))
		for i, q := range qs {
			if wires == nil {
				out[i] = q
			} else {
				out[i] = wires[q]
			}
		}
		return out
	}

	switch o := op.(type) {
	case Gate:
		fn(Instruction{
			Kind:     o.Kind,
			Angle:    o.Angle,
			Targets:  resolve(o.Targets),
			Controls: append([]int(nil), controls...),
		})
	case Controlled:
		next := append(append([]int(nil), controls...), resolve(o.Controls)...)
		walk(o.Inner, wires, next, fn)
	case Sequence:
		for _, inner := range o.Ops {
			walk(inner, wires, controls, fn)
		}
	case Placed:
		walk(o.Inner, resolve(o.Wires), controls, fn)
	default:
		panic(fmt.Sprintf("circuit: unknown op %T", op))
	}
}

// Flatten collects the instructions of op.
func Flatten(op Op) []Instruction {
	var out []Instruction
	Walk(op, func(in Instruction) { out = append(out, in) })
	return out
}

// Stats summarizes the elementary gates in an operation tree.
type Stats struct {
	Gates       int
	ByKind      map[Kind]int
	Controlled  int
	MaxControls int
}

func Count(op Op) Stats {
	s := Stats{ByKind: map[Kind]int{}}
	Walk(op, func(in Instruction) {
		s.Gates++
		s.ByKind[in.Kind]++
		if len(in.Controls) > 0 {
			s.Controlled++
		}
		if len(in.Controls) > s.MaxControls {
			s.MaxControls = len(in.Controls)
		}
	})
	return s
}

// InitializeToValue flips the wires holding the set bits of value, taking
// qubits[i] as the bit with weight 2^i.
func InitializeToValue(value uint64, qubits []int) Sequence {
	seq := Sequence{Name: fmt.Sprintf("init(%d)", value)}
	for i, q := range qubits {
		if i < 64 && value&(1<<uint(i)) != 0 {
			seq.Ops = append(seq.Ops, NewX(q))
		}
	}
	return seq
}
