package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qfactor/internal/cli"
)

type scenario struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

func runScenario(ctx context.Context, path string, sc scenario, reps int) (time.Duration, cli.Out, error) {
	var best time.Duration
	var last cli.Out
	for i := range reps {
		dur, out, err := runOnce(ctx, path, sc)
		if err != nil {
			return dur, last, err
		}
		last = out
		if i == 0 || dur < best {
			best = dur
		}
	}
	return best, last, nil
}

func runOnce(ctx context.Context, path string, sc scenario) (time.Duration, cli.Out, error) {
	ctx, cancel := context.WithTimeout(ctx, sc.Timeout)
	defer cancel()
	args := append([]string{}, sc.Args...)
	args = append(args, "--json")
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	t0 := time.Now()
	err := cmd.Run()
	dur := time.Since(t0)
	if ctx.Err() == context.DeadlineExceeded {
		return dur, cli.Out{}, errors.Errorf("timeout: %s", sc.Name)
	}
	if err != nil {
		return dur, cli.Out{}, errors.Wrapf(err, "%s failed\n%s", sc.Name, stderr.String())
	}
	var out cli.Out
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return dur, cli.Out{}, errors.Wrapf(err, "%s parse json\nraw=%s", sc.Name, stdout.String())
	}
	return dur, out, nil
}

func summary(out cli.Out) string {
	switch {
	case out.Factor != nil && out.Factor.Found:
		return fmt.Sprintf("%d = %s via %s, rounds=%d", out.Factor.N, out.Factor.Factors, out.Factor.Method, out.Factor.Rounds)
	case out.Factor != nil:
		return fmt.Sprintf("%d prime, confidence=%g rounds=%d", out.Factor.N, out.Factor.Confidence, out.Factor.Rounds)
	case out.Order != nil:
		return fmt.Sprintf("order=%d attempts=%d qubits=%d", out.Order.Order, out.Order.Attempts, out.Order.Qubits)
	case out.Circuit != nil:
		return fmt.Sprintf("qubits=%d gates=%d", out.Circuit.Qubits, out.Circuit.Gates)
	}
	return "?"
}

func main() {
	var (
		qfactorPath string
		reps        int
		timeout     time.Duration
		seed        string
	)
	root := &cobra.Command{
		Use:          "qbench",
		Short:        "Time qfactor over fixed scenarios",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(qfactorPath); err != nil {
				return errors.Errorf("qfactor not found at %s (build it first)", qfactorPath)
			}
			s := []string{"--seed", seed}
			scenarios := []scenario{
				{Name: "even n=1000", Args: append([]string{"factor", "1000"}, s...)},
				{Name: "power n=3125", Args: append([]string{"factor", "3125"}, s...)},
				{Name: "prime n=3 (10 qubits)", Args: append([]string{"factor", "3"}, s...)},
				{Name: "order 2 mod 3", Args: append([]string{"order", "2", "3"}, s...)},
				{Name: "compile 7 mod 15", Args: append([]string{"compile", "7", "15"}, s...)},
				{Name: "order 7 mod 15 (18 qubits)", Args: append([]string{"order", "7", "15"}, s...)},
				{Name: "shor n=15 (18 qubits)", Args: append([]string{"factor", "15", "--confidence", "1"}, s...)},
				{Name: "shor n=21 (21 qubits)", Args: append([]string{"factor", "21", "--confidence", "1"}, s...)},
			}

			fmt.Fprintln(cmd.OutOrStdout(), "qfactor bench - running scenarios")
			for _, sc := range scenarios {
				sc.Timeout = timeout
				dur, out, err := runScenario(cmd.Context(), qfactorPath, sc, reps)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-30s : ERROR: %v\n", sc.Name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s : %10s  %s\n", sc.Name, dur.Truncate(time.Microsecond), summary(out))
			}
			return nil
		},
	}
	root.Flags().StringVar(&qfactorPath, "qfactor", "./qfactor", "path to qfactor binary")
	root.Flags().IntVar(&reps, "reps", 1, "repetitions per scenario (report best)")
	root.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-run timeout")
	root.Flags().StringVar(&seed, "seed", "1", "seed passed to every run")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qbench:", err)
		os.Exit(1)
	}
}
