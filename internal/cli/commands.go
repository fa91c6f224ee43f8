// Package cli wires configuration, logging and the factoring pipeline into
// the qfactor command tree.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qfactor/internal/config"
	"qfactor/internal/factor"
	"qfactor/internal/order"
	"qfactor/internal/qasm"
)

var version = "dev"

type globalFlags struct {
	configPath  string
	confidence  float64
	seed        uint64
	maxMem      string
	parallelism int
	debug       bool
	json        bool
	out         string
	metrics     string
}

// NewRootCommand returns the qfactor command tree writing results to stdout
// and logs to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:   "qfactor",
		Short: "Factor integers with a simulated Shor's algorithm",
		Long: `qfactor factors integers by order finding on a simulated quantum computer.

Examples:
  # Factor 15
  qfactor factor 15

  # Find the order of 7 modulo 15 with a fixed seed
  qfactor order 7 15 --seed 42

  # Export the order-finding circuit as OpenQASM
  qfactor compile 7 15 --qasm order.qasm`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.Float64Var(&g.confidence, "confidence", config.DefaultConfidence, "primality confidence at which factoring stops")
	pf.Uint64Var(&g.seed, "seed", 0, "random seed (0 seeds from the clock)")
	pf.StringVar(&g.maxMem, "max-mem", "4GB", "memory cap for the simulator (e.g. 4GB, 500MB)")
	pf.IntVar(&g.parallelism, "parallelism", 1, "witness rounds run concurrently")
	pf.BoolVar(&g.debug, "debug", false, "debug logging")
	pf.BoolVar(&g.json, "json", false, "print results as JSON")
	pf.StringVar(&g.out, "out", "-", "output file path, or - for stdout")
	pf.StringVar(&g.metrics, "metrics", "", "write Prometheus metrics in text format to this file when the command ends")

	root.AddCommand(factorCmd(&g), orderCmd(&g), compileCmd(&g))
	return root
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("confidence") {
		cfg.Confidence = g.confidence
	}
	if flags.Changed("seed") {
		cfg.Seed = g.seed
	}
	if flags.Changed("max-mem") {
		cfg.MaxMem = g.maxMem
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = g.parallelism
	}
	if flags.Changed("debug") {
		cfg.Debug = g.debug
	}
	if flags.Changed("json") {
		cfg.JSON = g.json
	}
	if flags.Changed("out") {
		cfg.Out = g.out
	}
	if flags.Changed("metrics") {
		cfg.MetricsFile = g.metrics
	}
	return cfg, cfg.Validate()
}

// run builds a runtime, calls fn, and prints the document it fills in.
func run(cmd *cobra.Command, g *globalFlags, command string, fn func(ctx context.Context, rt *Runtime, out *Out) error) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	out := &Out{RunID: rt.RunID, Command: command, Seed: rt.Seed}
	start := time.Now()
	err = fn(cmd.Context(), rt, out)
	if cfg.MetricsFile != "" {
		// failed runs are dumped too
		if merr := writeMetrics(cfg.MetricsFile); merr != nil {
			rt.Logger.Warn("metrics not written", zap.String("path", cfg.MetricsFile), zap.Error(merr))
		}
	}
	if err != nil {
		rt.Logger.Error("command failed", zap.String("command", command), zap.Error(err))
		return err
	}
	out.ElapsedMS = time.Since(start).Milliseconds()

	w, closeFn, err := openOut(cfg.Out, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if cfg.JSON {
		err = writeJSON(w, out)
	} else {
		err = writeText(w, out)
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return err
}

func writeMetrics(path string) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, prometheus.DefaultGatherer), "write metrics")
}

func parseArgs(args []string) ([]uint64, error) {
	vals := make([]uint64, len(args))
	for i, a := range args {
		v, err := factor.ParseInteger(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func factorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "factor N",
		Short: "Split N into two factors or report it as prime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args)
			if err != nil {
				return err
			}
			return run(cmd, g, "factor", func(ctx context.Context, rt *Runtime, out *Out) error {
				rep, err := rt.Factorizer.Run(ctx, vals[0], rt.Config.Confidence)
				if err != nil {
					return err
				}
				rt.Logger.Info("factorization finished",
					zap.Uint64("n", rep.N),
					zap.Bool("found", rep.Found),
					zap.String("method", string(rep.Method)))
				out.Factor = &rep
				return nil
			})
		},
	}
}

func orderCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "order X N",
		Short: "Find the multiplicative order of X modulo N",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args)
			if err != nil {
				return err
			}
			return run(cmd, g, "order", func(ctx context.Context, rt *Runtime, out *Out) error {
				x, n := vals[0], vals[1]
				res, err := rt.Finder.Find(ctx, x, n)
				if err != nil {
					return err
				}
				out.Order = &OrderReport{
					X:        x,
					N:        n,
					Order:    res.Order,
					Attempts: res.Attempts,
					Qubits:   order.SizesFor(n).Width(),
					Samples:  res.Samples,
				}
				return nil
			})
		},
	}
}

func compileCmd(g *globalFlags) *cobra.Command {
	var qasmPath string
	cmd := &cobra.Command{
		Use:   "compile X N",
		Short: "Build the order-finding circuit for X modulo N",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args)
			if err != nil {
				return err
			}
			return run(cmd, g, "compile", func(_ context.Context, rt *Runtime, out *Out) error {
				c, err := rt.Finder.Compile(vals[0], vals[1])
				if err != nil {
					return err
				}
				out.Circuit = newCircuitReport(c)
				if qasmPath == "" {
					return nil
				}
				f, err := os.Create(qasmPath)
				if err != nil {
					return errors.Wrap(err, "create qasm file")
				}
				if err := qasm.Write(f, c); err != nil {
					f.Close()
					return err
				}
				out.Circuit.QASM = qasmPath
				return errors.Wrap(f.Close(), "close qasm file")
			})
		},
	}
	cmd.Flags().StringVar(&qasmPath, "qasm", "", "write the circuit as OpenQASM 2.0 to this file")
	return cmd
}
