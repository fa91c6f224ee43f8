package statevec

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"qfactor/internal/circuit"
	"qfactor/internal/execute"
	"qfactor/internal/metrics"
)

const (
	DefaultMaxMem    = 4 << 30
	DefaultCacheSize = 64

	// use up to 80% of the memory cap for the state vector
	safety80 = 8.0 / 10.0

	// instructions between context checks
	checkEvery = 256
)

type Config struct {
	MaxQubits int    // 0: derived from MaxMem
	MaxMem    uint64 // bytes; 0: DefaultMaxMem
	CacheSize int    // distributions kept; 0: DefaultCacheSize
}

// Executor simulates circuits exactly and samples the measured register.
// Final distributions are cached per circuit, so repeated executions of the
// same circuit only pay for sampling. Safe for concurrent use.
type Executor struct {
	maxQubits int
	cache     *lru.Cache[string, []float64]
	flight    singleflight.Group

	mu  sync.Mutex
	rng *rand.Rand

	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ execute.Executor = (*Executor)(nil)

// QubitsForMemory is the widest state vector that fits in maxMem bytes with
// the safety margin applied.
func QubitsForMemory(maxMem uint64) int {
	budget := float64(maxMem) * safety80
	w := 0
	for w < HardMaxQubits && float64(uint64(BytesPerAmplitude)<<uint(w+1)) <= budget {
		w++
	}
	return w
}

func New(cfg Config, rng *rand.Rand, logger *zap.Logger) (*Executor, error) {
	if cfg.MaxMem == 0 {
		cfg.MaxMem = DefaultMaxMem
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if rng == nil {
		return nil, errors.New("statevec: nil random source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxQubits := QubitsForMemory(cfg.MaxMem)
	if cfg.MaxQubits > 0 && cfg.MaxQubits < maxQubits {
		maxQubits = cfg.MaxQubits
	}
	cache, err := lru.New[string, []float64](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create distribution cache")
	}
	return &Executor{
		maxQubits: maxQubits,
		cache:     cache,
		rng:       rng,
		logger:    logger.Named("statevec"),
		metrics:   metrics.Get(),
	}, nil
}

func (e *Executor) MaxQubits() int { return e.maxQubits }

func (e *Executor) Execute(ctx context.Context, c *circuit.Circuit, shots int) (execute.Result, error) {
	if shots < 1 {
		return execute.Result{}, errors.Errorf("shots must be >= 1; found %d", shots)
	}
	if c.Width() > e.maxQubits {
		return execute.Result{}, errors.Wrapf(ErrTooLarge, "%s needs %d qubits; limit is %d",
			c.Name, c.Width(), e.maxQubits)
	}
	start := time.Now()
	e.metrics.ExecutionsTotal.Inc()
	defer func() { e.metrics.ExecuteDuration.Observe(time.Since(start).Seconds()) }()

	dist, err := e.distribution(ctx, c)
	if err != nil {
		return execute.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	res := execute.Result{Outcomes: make([]uint64, shots)}
	for i := range res.Outcomes {
		res.Outcomes[i] = sample(dist, e.rng.Float64())
	}
	return res, nil
}

// cacheKey identifies a distribution by the circuit's content; the name only
// makes keys readable in logs.
func cacheKey(c *circuit.Circuit) string {
	return fmt.Sprintf("%s/%016x", c.Name, c.Fingerprint())
}

func (e *Executor) distribution(ctx context.Context, c *circuit.Circuit) ([]float64, error) {
	key := cacheKey(c)
	if dist, ok := e.cache.Get(key); ok {
		e.metrics.DistributionHits.WithLabelValues("hit").Inc()
		return dist, nil
	}
	e.metrics.DistributionHits.WithLabelValues("miss").Inc()

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "simulating %s", c.Name)
		}
		v, err, shared := e.flight.Do(key, func() (interface{}, error) {
			dist, err := e.simulate(ctx, c)
			if err != nil {
				return nil, err
			}
			e.cache.Add(key, dist)
			return dist, nil
		})
		if err == nil {
			return v.([]float64), nil
		}
		// A shared call fails with the context of whichever caller ran it.
		// Callers whose own context is still live run it again.
		if shared && ctx.Err() == nil && isContextErr(err) {
			e.logger.Debug("retrying simulation abandoned by another caller", zap.String("circuit", c.Name))
			continue
		}
		return nil, err
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Executor) simulate(ctx context.Context, c *circuit.Circuit) ([]float64, error) {
	start := time.Now()
	state, err := NewState(c.Width())
	if err != nil {
		return nil, err
	}
	program := circuit.Flatten(c.Body)
	for i, in := range program {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "simulating %s", c.Name)
			}
		}
		state.Apply(in)
	}
	dist := state.Probabilities(c.Measure)
	e.logger.Debug("simulated circuit",
		zap.String("circuit", c.Name),
		zap.Int("qubits", c.Width()),
		zap.Int("gates", len(program)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dist, nil
}

// sample inverts the CDF of dist at u in [0, 1).
func sample(dist []float64, u float64) uint64 {
	last := 0
	acc := 0.0
	for i, p := range dist {
		if p == 0 {
			continue
		}
		last = i
		acc += p
		if u < acc {
			return uint64(i)
		}
	}
	// rounding left the total just under u
	return uint64(last)
}
