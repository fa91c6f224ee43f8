package cli

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qfactor/internal/config"
	"qfactor/internal/factor"
	"qfactor/internal/logging"
	"qfactor/internal/order"
	"qfactor/internal/shor"
	"qfactor/internal/statevec"
	"qfactor/internal/synth"
)

// Runtime is one invocation's wired pipeline.
type Runtime struct {
	Config     *config.Config
	RunID      string
	Seed       uint64
	Logger     *zap.Logger
	Executor   *statevec.Executor
	Synth      *synth.Synthesizer
	Finder     *order.Finder
	Controller *shor.Controller
	Factorizer *factor.Factorizer

	closer io.Closer
}

// NewRuntime builds the logger, executor, synthesizer and controllers from
// cfg. Logs go to stderr unless cfg.LogFile is set.
func NewRuntime(cfg *config.Config, stderr io.Writer) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, RunID: uuid.NewString(), Seed: cfg.Seed, closer: closer}
	if rt.Seed == 0 {
		rt.Seed = uint64(time.Now().UnixNano())
	}
	rt.Logger = logger.With(zap.String("run_id", rt.RunID))

	rt.Executor, err = statevec.New(statevec.Config{
		MaxQubits: cfg.MaxQubits,
		MaxMem:    cfg.MaxMemBytes(),
	}, rand.New(rand.NewPCG(rt.Seed, 1)), rt.Logger)
	if err != nil {
		closer.Close()
		return nil, errors.Wrap(err, "create executor")
	}
	rt.Synth, err = synth.New(cfg.CacheSize, rt.Logger)
	if err != nil {
		closer.Close()
		return nil, errors.Wrap(err, "create synthesizer")
	}

	rt.Finder = order.NewFinder(rt.Executor, rt.Synth, rt.Logger)
	rt.Finder.MaxAttempts = cfg.MaxAttempts
	rt.Controller = shor.NewController(rt.Finder, rand.New(rand.NewPCG(rt.Seed, 2)), rt.Logger)
	rt.Controller.Parallelism = cfg.Parallelism
	rt.Factorizer = factor.New(rt.Controller, rt.Logger)

	rt.Logger.Debug("runtime ready",
		zap.Uint64("seed", rt.Seed),
		zap.Int("max_qubits", rt.Executor.MaxQubits()),
		zap.Int("parallelism", cfg.Parallelism))
	return rt, nil
}

// Close flushes the logger and releases its sink.
func (rt *Runtime) Close() error {
	_ = rt.Logger.Sync()
	return rt.closer.Close()
}
