// Package execute defines how compiled circuits are run.
package execute

import (
	"context"

	"qfactor/internal/circuit"
)

// Executor runs a circuit from the all-zero state and measures
// c.Measure once per shot.
type Executor interface {
	Execute(ctx context.Context, c *circuit.Circuit, shots int) (Result, error)
}

// Limiter is implemented by executors with a bound on circuit width.
type Limiter interface {
	MaxQubits() int
}

// Result holds one outcome per shot, read little-endian over the measured
// register.
type Result struct {
	Outcomes []uint64
}

// Counts tallies outcomes.
func (r Result) Counts() map[uint64]int {
	counts := make(map[uint64]int, len(r.Outcomes))
	for _, o := range r.Outcomes {
		counts[o]++
	}
	return counts
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, c *circuit.Circuit, shots int) (Result, error)

func (f Func) Execute(ctx context.Context, c *circuit.Circuit, shots int) (Result, error) {
	return f(ctx, c, shots)
}
