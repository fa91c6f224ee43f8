// Package factor splits an integer into two non-trivial factors, handling
// the cases that need no order finding (even numbers and perfect powers)
// before handing odd numbers to Shor's algorithm.
package factor

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qfactor/internal/arith"
	"qfactor/internal/shor"
)

var ErrInvalidInput = errors.New("invalid input")

// Method records how a factorization was obtained.
type Method string

const (
	MethodEven  Method = "even"
	MethodRoot  Method = "root"
	MethodShor  Method = "shor"
	MethodPrime Method = "prime"
)

// Factors is a pair with P <= Q and P*Q == n.
type Factors struct {
	P uint64 `json:"p"`
	Q uint64 `json:"q"`
}

func (f Factors) String() string { return fmt.Sprintf("%d × %d", f.P, f.Q) }

// Report is the full outcome of a factorization.
type Report struct {
	N          uint64  `json:"n"`
	Found      bool    `json:"found"`
	Factors    Factors `json:"factors"`
	Method     Method  `json:"method"`
	Confidence float64 `json:"confidence,omitempty"`
	Rounds     int     `json:"rounds,omitempty"`
}

// Runner runs Shor's algorithm on odd n >= 3.
type Runner interface {
	Run(ctx context.Context, n uint64, pMin float64) (shor.Result, error)
}

type Factorizer struct {
	runner Runner
	logger *zap.Logger
}

func New(runner Runner, logger *zap.Logger) *Factorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factorizer{runner: runner, logger: logger.Named("factor")}
}

// Factorize returns two factors of n, or ok == false when n is (probably)
// prime with confidence at least pMin.
func (f *Factorizer) Factorize(ctx context.Context, n uint64, pMin float64) (Factors, bool, error) {
	rep, err := f.Run(ctx, n, pMin)
	if err != nil {
		return Factors{}, false, err
	}
	return rep.Factors, rep.Found, nil
}

func (f *Factorizer) Run(ctx context.Context, n uint64, pMin float64) (Report, error) {
	if n < 2 {
		return Report{}, errors.Wrapf(ErrInvalidInput, "n must be >= 2; found %d", n)
	}
	if !(pMin >= 0 && pMin <= 1) {
		return Report{}, errors.Wrapf(ErrInvalidInput, "minimum confidence must be in [0, 1]; found %v", pMin)
	}

	rep := Report{N: n}
	switch {
	case n == 2:
		rep.Method = MethodPrime
		rep.Confidence = 1
		return rep, nil
	case n%2 == 0:
		rep.Found, rep.Method, rep.Factors = true, MethodEven, Factors{P: 2, Q: n / 2}
		return rep, nil
	}

	if root, ok := arith.IntegerRoot(n); ok {
		f.logger.Debug("perfect power", zap.Uint64("n", n), zap.Uint64("root", root))
		rep.Found, rep.Method, rep.Factors = true, MethodRoot, Factors{P: root, Q: n / root}
		return rep, nil
	}

	res, err := f.runner.Run(ctx, n, pMin)
	if err != nil {
		return Report{}, errors.Wrapf(err, "factorize %d", n)
	}
	rep.Confidence, rep.Rounds = res.Confidence, res.Rounds
	if !res.Found {
		rep.Method = MethodPrime
		return rep, nil
	}
	rep.Found, rep.Method, rep.Factors = true, MethodShor, Factors{P: res.P, Q: res.Q}
	return rep, nil
}

// ParseInteger accepts a non-negative decimal or 0x-prefixed hex integer
// that fits in 64 bits.
func ParseInteger(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	z, err := parseBig(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInput, "%v", err)
	}
	if z.Sign() < 0 || z.BitLen() > 64 {
		return 0, errors.Wrapf(ErrInvalidInput, "%q is outside [0, 2^64)", s)
	}
	return z.Uint64(), nil
}

func parseBig(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil || len(digits) == 0 {
			return nil, fmt.Errorf("cannot parse hex integer: %q", s)
		}
		return new(big.Int).SetBytes(b), nil
	}
	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("cannot parse integer: %q", s)
	}
	return z, nil
}
