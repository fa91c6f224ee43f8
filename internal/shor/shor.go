// Package shor runs the classical half of Shor's algorithm: pick a random
// witness, find its order, and either split n or grow the confidence that n
// is prime.
package shor

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qfactor/internal/arith"
	"qfactor/internal/metrics"
	"qfactor/internal/order"
)

var ErrInvalidInput = errors.New("invalid input")

// OrderFinder returns the multiplicative order of x modulo n.
type OrderFinder interface {
	Find(ctx context.Context, x, n uint64) (order.Result, error)
}

// NextConfidence is the primality confidence after one more inconclusive
// round: a composite n yields a usable order at least half the time, so each
// failure halves the remaining doubt.
func NextConfidence(p float64) (float64, error) {
	if !(p >= 0 && p <= 1) {
		return 0, errors.Wrapf(ErrInvalidInput, "confidence must be in [0, 1]; found %v", p)
	}
	return 1 - 0.5*(1-p), nil
}

// Result is the outcome of Run. P <= Q when Found.
type Result struct {
	Found      bool
	P, Q       uint64
	Confidence float64
	Rounds     int
}

type roundKind string

const (
	roundGCD          roundKind = "gcd"
	roundFactor       roundKind = "factor"
	roundInconclusive roundKind = "inconclusive"
)

type round struct {
	x     uint64
	kind  roundKind
	order uint64
	p, q  uint64
}

type Controller struct {
	// Parallelism is the number of witness rounds run at once; values
	// below 2 run rounds one at a time.
	Parallelism int

	finder  OrderFinder
	mu      sync.Mutex
	rng     *rand.Rand
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewController(finder OrderFinder, rng *rand.Rand, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		finder:  finder,
		rng:     rng,
		logger:  logger.Named("shor"),
		metrics: metrics.Get(),
	}
}

func sorted(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// witnesses draws k witnesses uniformly from [2, n).
func (c *Controller) witnesses(n uint64, k int) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	xs := make([]uint64, k)
	for i := range xs {
		xs[i] = 2 + c.rng.Uint64N(n-2)
	}
	return xs
}

func (c *Controller) round(ctx context.Context, n, x uint64) (round, error) {
	if g := arith.GCD(x, n); g != 1 {
		p, q := sorted(g, n/g)
		return round{x: x, kind: roundGCD, p: p, q: q}, nil
	}

	res, err := c.finder.Find(ctx, x, n)
	if errors.Is(err, order.ErrAttemptsExhausted) {
		c.logger.Warn("order finding gave up", zap.Uint64("x", x), zap.Error(err))
		return round{x: x, kind: roundInconclusive}, nil
	}
	if err != nil {
		return round{}, errors.Wrapf(err, "order of witness %d", x)
	}

	r := res.Order
	if r%2 == 0 {
		y := arith.PowMod(x, r/2, n)
		if y != n-1 {
			f := arith.GCD(y-1, n)
			// a correct order never yields 1 or n here
			if f != 1 && f != n {
				p, q := sorted(f, n/f)
				return round{x: x, kind: roundFactor, order: r, p: p, q: q}, nil
			}
			c.logger.Warn("order produced a trivial factor",
				zap.Uint64("x", x), zap.Uint64("order", r), zap.Uint64("factor", f))
		}
	}
	return round{x: x, kind: roundInconclusive, order: r}, nil
}

// Run searches for a non-trivial factor of the odd number n >= 3 until one
// is found or the primality confidence reaches pMin.
func (c *Controller) Run(ctx context.Context, n uint64, pMin float64) (Result, error) {
	if !(pMin >= 0 && pMin <= 1) {
		return Result{}, errors.Wrapf(ErrInvalidInput, "minimum confidence must be in [0, 1]; found %v", pMin)
	}
	if n < 3 || n%2 == 0 {
		return Result{}, errors.Wrapf(ErrInvalidInput, "n must be odd and >= 3; found %d", n)
	}

	batch := c.Parallelism
	if batch < 1 {
		batch = 1
	}
	res := Result{}
	for res.Confidence < pMin {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "factoring %d", n)
		}
		rounds, err := c.runBatch(ctx, n, c.witnesses(n, batch))
		if err != nil {
			return res, err
		}
		// fold in draw order so a seed fixes the outcome
		for _, rd := range rounds {
			res.Rounds++
			c.metrics.ShorRoundsTotal.WithLabelValues(string(rd.kind)).Inc()
			if rd.kind != roundInconclusive {
				res.Found, res.P, res.Q = true, rd.p, rd.q
				c.logger.Info("found factors",
					zap.Uint64("n", n),
					zap.Uint64("x", rd.x),
					zap.String("via", string(rd.kind)),
					zap.Uint64("p", rd.p),
					zap.Uint64("q", rd.q),
				)
				return res, nil
			}
			res.Confidence, _ = NextConfidence(res.Confidence)
			c.logger.Debug("inconclusive round",
				zap.Uint64("x", rd.x),
				zap.Uint64("order", rd.order),
				zap.Float64("confidence", res.Confidence),
			)
			if res.Confidence >= pMin {
				break
			}
		}
	}
	c.logger.Info("no factor found",
		zap.Uint64("n", n),
		zap.Float64("confidence", res.Confidence),
		zap.Int("rounds", res.Rounds),
	)
	return res, nil
}

func (c *Controller) runBatch(ctx context.Context, n uint64, xs []uint64) ([]round, error) {
	rounds := make([]round, len(xs))
	if len(xs) == 1 {
		rd, err := c.round(ctx, n, xs[0])
		rounds[0] = rd
		return rounds, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, x := range xs {
		g.Go(func() error {
			rd, err := c.round(gctx, n, x)
			if err != nil {
				return err
			}
			rounds[i] = rd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rounds, nil
}
