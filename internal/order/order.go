// Package order finds the multiplicative order of x modulo n by phase
// estimation: it compiles a modular exponentiation circuit, samples the
// exponent register, and turns each sample into a candidate order with a
// continued fraction approximation until one verifies.
package order

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qfactor/internal/arith"
	"qfactor/internal/circuit"
	"qfactor/internal/contfrac"
	"qfactor/internal/execute"
	"qfactor/internal/metrics"
	"qfactor/internal/synth"
)

// State is a step of the order-finding loop.
type State string

const (
	// StateSize - derive register widths and q from n
	StateSize State = "size"
	// StateCompile - build the phase estimation circuit
	StateCompile State = "compile"
	// StateExecute - run the circuit once and read the exponent register
	StateExecute State = "execute"
	// StateInterpret - approximate c/q by a fraction with denominator < n
	StateInterpret State = "interpret"
	// StateVerify - check x^r ≡ 1 (mod n)
	StateVerify State = "verify"
	// StateRetry - the candidate failed, sample again
	StateRetry State = "retry"
	// StateDone - the order is known
	StateDone State = "done"
)

// Register names in the compiled layout.
const (
	RegExponent = "exponent"
	RegResult   = "result"
	RegScratch  = "scratch"
	RegCarry    = "carry"
)

// MaxModulus bounds n so that q, the power of two at or above n², still fits
// in a uint64. Past 2^31.5 it would be 2^64.
const MaxModulus = 1 << 31

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTooManyQubits     = errors.New("circuit exceeds executor qubit limit")
	ErrAttemptsExhausted = errors.New("order finding attempts exhausted")
)

// TransitionListener is notified of state transitions.
type TransitionListener interface {
	OnTransition(from, to State, attempt int)
}

// Q is the smallest power of two that is at least n².
func Q(n uint64) uint64 { return 1 << uint(arith.CeilLog2Square(n)) }

// Sizes are the register widths for modulus n.
type Sizes struct {
	Exponent int // log2 q
	Result   int // ceil(log2 n)
}

func SizesFor(n uint64) Sizes {
	return Sizes{
		Exponent: arith.CeilLog2Square(n),
		Result:   arith.MinBitsForModulus(n),
	}
}

// Width is the total qubit count: exponent, result, scratch (result plus an
// overflow bit) and one carry qubit.
func (s Sizes) Width() int { return s.Exponent + 2*s.Result + 2 }

// Result is the outcome of Find.
type Result struct {
	Order    uint64
	Attempts int
	Samples  []uint64
}

type Finder struct {
	// MaxAttempts bounds the number of executions; 0 means unbounded.
	MaxAttempts int
	// MaxQubits rejects wider circuits up front; 0 defers to the executor.
	MaxQubits int
	Listener  TransitionListener

	executor execute.Executor
	synth    *synth.Synthesizer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewFinder returns a Finder running circuits on executor. A nil synthesizer
// builds circuits without memoization.
func NewFinder(executor execute.Executor, s *synth.Synthesizer, logger *zap.Logger) *Finder {
	if s == nil {
		s = synth.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		executor: executor,
		synth:    s,
		logger:   logger.Named("order"),
		metrics:  metrics.Get(),
	}
}

func validate(x, n uint64) error {
	if n <= 2 {
		return errors.Wrapf(ErrInvalidInput, "modulus must be > 2; found %d", n)
	}
	if x < 2 || x >= n {
		return errors.Wrapf(ErrInvalidInput, "x must be in [2, %d); found %d", n, x)
	}
	if g := arith.GCD(x, n); g != 1 {
		return errors.Wrapf(ErrInvalidInput, "%d shares the factor %d with %d", x, g, n)
	}
	return nil
}

func (f *Finder) qubitLimit() int {
	limit := f.MaxQubits
	if l, ok := f.executor.(execute.Limiter); ok {
		if m := l.MaxQubits(); m > 0 && (limit == 0 || m < limit) {
			limit = m
		}
	}
	return limit
}

func (f *Finder) checkSize(n uint64) (Sizes, error) {
	if n >= MaxModulus {
		return Sizes{}, errors.Wrapf(ErrTooManyQubits, "modulus %d needs more than 62 exponent qubits", n)
	}
	sizes := SizesFor(n)
	if limit := f.qubitLimit(); limit > 0 && sizes.Width() > limit {
		return Sizes{}, errors.Wrapf(ErrTooManyQubits, "order finding modulo %d needs %d qubits; limit is %d",
			n, sizes.Width(), limit)
	}
	return sizes, nil
}

// Compile builds the phase estimation circuit for x modulo n: Hadamards on
// the exponent register, the modular exponentiator, and a Fourier transform
// of the exponent register, which is then measured.
func (f *Finder) Compile(x, n uint64) (*circuit.Circuit, error) {
	if err := validate(x, n); err != nil {
		return nil, err
	}
	sizes, err := f.checkSize(n)
	if err != nil {
		return nil, err
	}
	return f.compile(x, n, sizes)
}

func (f *Finder) compile(x, n uint64, sizes Sizes) (*circuit.Circuit, error) {
	var layout circuit.Layout
	exponent := layout.Add(RegExponent, sizes.Exponent)
	layout.Add(RegResult, sizes.Result)
	layout.Add(RegScratch, sizes.Result+1)
	layout.Add(RegCarry, 1)

	modexp, err := f.synth.ModularExponentiator(sizes.Exponent, sizes.Result, x, n)
	if err != nil {
		return nil, errors.Wrapf(err, "compile order finding for %d mod %d", x, n)
	}

	name := fmt.Sprintf("order(%d mod %d)", x, n)
	body := circuit.Sequence{Name: name}
	for _, q := range exponent.Qubits() {
		body.Ops = append(body.Ops, circuit.NewH(q))
	}
	body.Ops = append(body.Ops,
		modexp,
		circuit.Place(f.synth.QFT(sizes.Exponent), exponent.Qubits()...),
	)

	c := &circuit.Circuit{
		Name:    name,
		Layout:  layout,
		Body:    body,
		Measure: exponent,
	}
	if c.Width() != sizes.Width() {
		return nil, errors.Errorf("layout width %d does not match %d", c.Width(), sizes.Width())
	}
	return c, nil
}

func (f *Finder) transition(from, to State, attempt int) State {
	f.logger.Debug("order state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("attempt", attempt),
	)
	if f.Listener != nil {
		f.Listener.OnTransition(from, to, attempt)
	}
	return to
}

// Find returns the order of x modulo n. It samples until a candidate
// verifies, MaxAttempts is reached, or ctx is done. The circuit is compiled
// once and reused for every attempt.
func (f *Finder) Find(ctx context.Context, x, n uint64) (Result, error) {
	state := StateSize
	if err := validate(x, n); err != nil {
		return Result{}, err
	}
	sizes, err := f.checkSize(n)
	if err != nil {
		return Result{}, err
	}
	q := Q(n)

	state = f.transition(state, StateCompile, 0)
	c, err := f.compile(x, n, sizes)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for attempt := 1; ; attempt++ {
		if f.MaxAttempts > 0 && attempt > f.MaxAttempts {
			return res, errors.Wrapf(ErrAttemptsExhausted, "order of %d mod %d after %d attempts",
				x, n, f.MaxAttempts)
		}
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "order of %d mod %d", x, n)
		}
		res.Attempts = attempt

		state = f.transition(state, StateExecute, attempt)
		out, err := f.executor.Execute(ctx, c, 1)
		if err != nil {
			return res, errors.Wrapf(err, "execute %s", c.Name)
		}
		if len(out.Outcomes) != 1 {
			return res, errors.Errorf("execute %s: expected one outcome, got %d", c.Name, len(out.Outcomes))
		}
		sample := out.Outcomes[0]
		res.Samples = append(res.Samples, sample)

		state = f.transition(state, StateInterpret, attempt)
		frac, err := contfrac.NearestRational(sample, q, n-1)
		if err != nil {
			return res, errors.Wrapf(err, "interpret sample %d/%d", sample, q)
		}

		state = f.transition(state, StateVerify, attempt)
		r := frac.Den
		if arith.PowMod(x, r, n) == 1 {
			f.transition(state, StateDone, attempt)
			f.metrics.OrderRoundsTotal.WithLabelValues("verified").Inc()
			res.Order = r
			f.logger.Info("found order",
				zap.Uint64("x", x),
				zap.Uint64("n", n),
				zap.Uint64("order", r),
				zap.Int("attempts", attempt),
			)
			return res, nil
		}

		f.metrics.OrderRoundsTotal.WithLabelValues("retry").Inc()
		f.logger.Debug("candidate order rejected",
			zap.Uint64("sample", sample),
			zap.Uint64("q", q),
			zap.Stringer("fraction", frac),
		)
		state = f.transition(state, StateRetry, attempt)
	}
}
