package circuit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var ErrInvalidCircuit = errors.New("invalid circuit")

// Register is a named contiguous block of wires. Bit i of the register's
// value lives on wire Offset+i.
type Register struct {
	Name   string
	Offset int
	Width  int
}

func (r Register) Qubit(i int) int { return r.Offset + i }

func (r Register) Qubits() []int {
	qs := make([]int, r.Width)
	for i := range qs {
		qs[i] = r.Offset + i
	}
	return qs
}

// Value extracts the register's bits from a basis index of the whole circuit.
func (r Register) Value(index uint64) uint64 {
	if r.Width >= 64 {
		return index >> uint(r.Offset)
	}
	return (index >> uint(r.Offset)) & (1<<uint(r.Width) - 1)
}

// Layout allocates registers back to back starting at wire 0.
type Layout struct {
	regs  []Register
	width int
}

func (l *Layout) Add(name string, width int) Register {
	r := Register{Name: name, Offset: l.width, Width: width}
	l.regs = append(l.regs, r)
	l.width += width
	return r
}

func (l *Layout) Width() int { return l.width }

func (l *Layout) Registers() []Register { return append([]Register(nil), l.regs...) }

func (l *Layout) Register(name string) (Register, bool) {
	for _, r := range l.regs {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// Circuit is a complete program: a body over Layout's wires, started from
// the all-zero state, and the register read out at the end.
type Circuit struct {
	Name    string
	Layout  Layout
	Body    Op
	Measure Register
}

func (c *Circuit) Width() int { return c.Layout.Width() }

// Fingerprint hashes what the circuit computes: its width, every flattened
// instruction and the measured register. The name is not part of it, so two
// circuits with equal fingerprints have the same output distribution.
func (c *Circuit) Fingerprint() uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	putInts := func(qs []int) {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(qs)))
		for _, q := range qs {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(q))
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Width()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Measure.Offset))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Measure.Width))
	d.Write(buf)
	if c.Body == nil {
		return d.Sum64()
	}
	Walk(c.Body, func(in Instruction) {
		buf = append(buf[:0], byte(in.Kind))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(in.Angle))
		putInts(in.Targets)
		putInts(in.Controls)
		d.Write(buf)
	})
	return d.Sum64()
}

// Validate checks that every instruction stays inside the circuit and never
// uses the same wire twice.
func (c *Circuit) Validate() error {
	if c.Body == nil {
		return errors.Wrap(ErrInvalidCircuit, "empty body")
	}
	width := c.Width()
	if c.Measure.Width == 0 || c.Measure.Offset+c.Measure.Width > width {
		return errors.Wrapf(ErrInvalidCircuit, "measured register %q outside %d wires", c.Measure.Name, width)
	}
	return ValidateOp(c.Body, width)
}

// ValidateOp checks op against a frame of width wires.
func ValidateOp(op Op, width int) (err error) {
	defer func() {
		// Placed frames with too few wires surface as index panics in Walk
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrInvalidCircuit, "%v", r)
		}
	}()
	n := 0
	Walk(op, func(in Instruction) {
		if err != nil {
			return
		}
		if len(in.Targets) != in.Kind.arity() {
			err = errors.Wrapf(ErrInvalidCircuit, "instruction %d: %s takes %d targets, got %d",
				n, in.Kind, in.Kind.arity(), len(in.Targets))
			return
		}
		seen := map[int]bool{}
		for _, q := range append(append([]int(nil), in.Controls...), in.Targets...) {
			if q < 0 || q >= width {
				err = errors.Wrapf(ErrInvalidCircuit, "instruction %d: wire %d outside [0, %d)", n, q, width)
				return
			}
			if seen[q] {
				err = errors.Wrapf(ErrInvalidCircuit, "instruction %d: wire %d used twice", n, q)
				return
			}
			seen[q] = true
		}
		n++
	})
	return err
}

func (c *Circuit) String() string {
	s := Count(c.Body)
	return fmt.Sprintf("%s: %d qubits, %d gates (%d controlled, max %d controls)",
		c.Name, c.Width(), s.Gates, s.Controlled, s.MaxControls)
}
