// Package qasm writes circuits as OpenQASM 2.0 programs.
package qasm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"qfactor/internal/circuit"
)

// ErrUnsupported is returned for gates qelib1.inc cannot express.
var ErrUnsupported = errors.New("unsupported gate")

// ccu1 is the doubly controlled phase, built from controlled phases.
const ccu1Def = `gate ccu1(lambda) a,b,c
{
  cu1(lambda/2) b,c;
  cx a,b;
  cu1(-lambda/2) b,c;
  cx a,b;
  cu1(lambda/2) a,c;
}
`

// Write emits c to w: header, registers, the body in application order, and
// a measurement of c.Measure into creg c.
func Write(w io.Writer, c *circuit.Circuit) error {
	if err := c.Validate(); err != nil {
		return err
	}
	instrs := circuit.Flatten(c.Body)
	lines := make([]string, 0, len(instrs))
	needCCU1 := false
	for i, in := range instrs {
		line, err := format(in)
		if err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
		if strings.HasPrefix(line, "ccu1(") {
			needCCU1 = true
		}
		lines = append(lines, line)
	}

	b := bufio.NewWriter(w)
	fmt.Fprintf(b, "// %s\n", c.Name)
	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n")
	if needCCU1 {
		b.WriteString("\n" + ccu1Def)
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "qreg q[%d];\n", c.Width())
	fmt.Fprintf(b, "creg c[%d];\n\n", c.Measure.Width)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\n")
	for i, q := range c.Measure.Qubits() {
		fmt.Fprintf(b, "measure q[%d] -> c[%d];\n", q, i)
	}
	return errors.Wrap(b.Flush(), "write qasm")
}

func format(in circuit.Instruction) (string, error) {
	ctl := len(in.Controls)
	var name string
	switch {
	case in.Kind == circuit.H && ctl == 0:
		name = "h"
	case in.Kind == circuit.X && ctl <= 2:
		name = strings.Repeat("c", ctl) + "x"
	case in.Kind == circuit.Phase && ctl <= 2:
		name = strings.Repeat("c", ctl) + "u1(" + angle(in.Angle) + ")"
	case in.Kind == circuit.Swap && ctl <= 1:
		name = strings.Repeat("c", ctl) + "swap"
	default:
		return "", errors.Wrapf(ErrUnsupported, "%s with %d controls", in.Kind, ctl)
	}
	wires := append(append([]int(nil), in.Controls...), in.Targets...)
	args := make([]string, len(wires))
	for i, q := range wires {
		args[i] = fmt.Sprintf("q[%d]", q)
	}
	return name + " " + strings.Join(args, ",") + ";", nil
}

func angle(theta float64) string {
	return strconv.FormatFloat(theta, 'g', -1, 64)
}
