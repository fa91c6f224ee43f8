package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/markkurossi/tabulate"
	"github.com/pkg/errors"

	"qfactor/internal/circuit"
	"qfactor/internal/factor"
)

// Out is the document printed with --json.
type Out struct {
	RunID     string         `json:"runId"`
	Command   string         `json:"command"`
	Seed      uint64         `json:"seed"`
	ElapsedMS int64          `json:"elapsedMs"`
	Factor    *factor.Report `json:"factor,omitempty"`
	Order     *OrderReport   `json:"order,omitempty"`
	Circuit   *CircuitReport `json:"circuit,omitempty"`
}

type OrderReport struct {
	X        uint64   `json:"x"`
	N        uint64   `json:"n"`
	Order    uint64   `json:"order"`
	Attempts int      `json:"attempts"`
	Qubits   int      `json:"qubits"`
	Samples  []uint64 `json:"samples"`
}

type CircuitReport struct {
	Name        string         `json:"name"`
	Qubits      int            `json:"qubits"`
	Measured    int            `json:"measured"`
	Gates       int            `json:"gates"`
	Controlled  int            `json:"controlled"`
	MaxControls int            `json:"maxControls"`
	ByKind      map[string]int `json:"byKind"`
	QASM        string         `json:"qasm,omitempty"`
}

func newCircuitReport(c *circuit.Circuit) *CircuitReport {
	s := circuit.Count(c.Body)
	rep := &CircuitReport{
		Name:        c.Name,
		Qubits:      c.Width(),
		Measured:    c.Measure.Width,
		Gates:       s.Gates,
		Controlled:  s.Controlled,
		MaxControls: s.MaxControls,
		ByKind:      map[string]int{},
	}
	for k, v := range s.ByKind {
		rep.ByKind[k.String()] = v
	}
	return rep
}

// openOut returns a buffered writer for path ("-" is stdout) and a function
// that flushes and closes it.
func openOut(path string, stdout io.Writer) (*bufio.Writer, func() error, error) {
	if path == "-" || path == "" {
		w := bufio.NewWriter(stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open output")
	}
	w := bufio.NewWriter(f)
	closeFn := func() error {
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return w, closeFn, nil
}

func writeJSON(w io.Writer, out *Out) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(out), "encode output")
}

func writeText(w io.Writer, out *Out) error {
	var b strings.Builder
	switch {
	case out.Factor != nil:
		r := out.Factor
		fmt.Fprintf(&b, "qfactor factor n=%d\n", r.N)
		if r.Found {
			fmt.Fprintf(&b, "%d = %s (%s", r.N, r.Factors, r.Method)
			if r.Rounds > 0 {
				fmt.Fprintf(&b, ", %d rounds", r.Rounds)
			}
			b.WriteString(")\n")
		} else {
			fmt.Fprintf(&b, "%d is prime with confidence %g (%d rounds)\n", r.N, r.Confidence, r.Rounds)
		}
	case out.Order != nil:
		r := out.Order
		fmt.Fprintf(&b, "qfactor order x=%d n=%d qubits=%d\n", r.X, r.N, r.Qubits)
		fmt.Fprintf(&b, "order of %d mod %d is %d (%d attempts)\n", r.X, r.N, r.Order, r.Attempts)
	case out.Circuit != nil:
		r := out.Circuit
		fmt.Fprintf(&b, "qfactor compile %s\n", r.Name)
		fmt.Fprintf(&b, "%d qubits (%d measured), %d gates, %d controlled, max %d controls\n",
			r.Qubits, r.Measured, r.Gates, r.Controlled, r.MaxControls)
		kinds := make([]string, 0, len(r.ByKind))
		for k := range r.ByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		tab := tabulate.New(tabulate.Plain)
		tab.Header("Gate").SetAlign(tabulate.ML)
		tab.Header("Count").SetAlign(tabulate.MR)
		for _, k := range kinds {
			row := tab.Row()
			row.Column(k)
			row.Column(strconv.Itoa(r.ByKind[k]))
		}
		tab.Print(&b)
		if r.QASM != "" {
			fmt.Fprintf(&b, "qasm written to %s\n", r.QASM)
		}
	default:
		return errors.New("nothing to write")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
