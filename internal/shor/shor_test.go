package shor

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"qfactor/internal/arith"
	"qfactor/internal/order"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// bruteForce finds orders classically.
type bruteForce struct {
	mu    sync.Mutex
	calls []uint64
	err   error
}

func (b *bruteForce) Find(_ context.Context, x, n uint64) (order.Result, error) {
	b.mu.Lock()
	b.calls = append(b.calls, x)
	b.mu.Unlock()
	if b.err != nil {
		return order.Result{}, b.err
	}
	r := uint64(1)
	for y := x % n; y != 1; y = arith.MulMod(y, x, n) {
		r++
	}
	return order.Result{Order: r, Attempts: 1}, nil
}

func newRand(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed)) }

func TestNextConfidence(t *testing.T) {
	p := 0.0
	for _, want := range []float64{0.5, 0.75, 0.875} {
		var err error
		p, err = NextConfidence(p)
		require.NoError(t, err)
		assert.Equal(t, want, p)
	}
	for _, bad := range []float64{-1, 2} {
		_, err := NextConfidence(bad)
		assert.True(t, errors.Is(err, ErrInvalidInput), "p=%v", bad)
	}
}

func TestRunComposite(t *testing.T) {
	for _, c := range []struct{ n, p, q uint64 }{
		{15, 3, 5},
		{21, 3, 7},
		{35, 5, 7},
		{91, 7, 13},
		{143, 11, 13},
	} {
		ctl := NewController(&bruteForce{}, newRand(c.n), nil)
		res, err := ctl.Run(context.Background(), c.n, 1)
		require.NoError(t, err, "n=%d", c.n)
		require.True(t, res.Found, "n=%d", c.n)
		assert.Equal(t, c.p, res.P, "n=%d", c.n)
		assert.Equal(t, c.q, res.Q, "n=%d", c.n)
	}
}

func TestRunPrime(t *testing.T) {
	for _, n := range []uint64{3, 5, 7, 11, 13} {
		ctl := NewController(&bruteForce{}, newRand(n), nil)
		res, err := ctl.Run(context.Background(), n, 0.95)
		require.NoError(t, err)
		assert.False(t, res.Found, "n=%d", n)
		assert.GreaterOrEqual(t, res.Confidence, 0.95)
		// 0.5, 0.75, 0.875, 0.9375, 0.96875
		assert.Equal(t, 5, res.Rounds, "n=%d", n)
	}
}

func TestRunZeroConfidenceSkipsRounds(t *testing.T) {
	finder := &bruteForce{}
	ctl := NewController(finder, newRand(1), nil)
	res, err := ctl.Run(context.Background(), 15, 0)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Zero(t, res.Rounds)
	assert.Empty(t, finder.calls)
}

func TestRunInvalidInput(t *testing.T) {
	ctl := NewController(&bruteForce{}, newRand(1), nil)
	for _, p := range []float64{-1, 2} {
		_, err := ctl.Run(context.Background(), 15, p)
		assert.True(t, errors.Is(err, ErrInvalidInput), "p=%v", p)
	}
	for _, n := range []uint64{0, 1, 2, 4} {
		_, err := ctl.Run(context.Background(), n, 0.5)
		assert.True(t, errors.Is(err, ErrInvalidInput), "n=%d", n)
	}
}

func TestRunPropagatesFinderError(t *testing.T) {
	boom := errors.New("boom")
	// 7 is prime, so every witness reaches the finder
	ctl := NewController(&bruteForce{err: boom}, newRand(1), nil)
	_, err := ctl.Run(context.Background(), 7, 0.9)
	assert.True(t, errors.Is(err, boom))
}

func TestRunExhaustedIsInconclusive(t *testing.T) {
	ctl := NewController(&bruteForce{err: order.ErrAttemptsExhausted}, newRand(1), nil)
	res, err := ctl.Run(context.Background(), 7, 0.75)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 2, res.Rounds)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctl := NewController(&bruteForce{}, newRand(1), nil)
	_, err := ctl.Run(ctx, 15, 0.9)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunParallelMatchesSequentialDraws(t *testing.T) {
	for _, par := range []int{2, 4, 8} {
		seq := NewController(&bruteForce{}, newRand(42), nil)
		want, err := seq.Run(context.Background(), 7, 0.99)
		require.NoError(t, err)

		finder := &bruteForce{}
		ctl := NewController(finder, newRand(42), nil)
		ctl.Parallelism = par
		got, err := ctl.Run(context.Background(), 7, 0.99)
		require.NoError(t, err)

		assert.Equal(t, want.Confidence, got.Confidence, "parallelism %d", par)
		assert.Equal(t, want.Rounds, got.Rounds, "parallelism %d", par)
		// whole batches were drawn even when the threshold fell mid-batch
		assert.Zero(t, len(finder.calls)%par, "parallelism %d", par)
	}
}

func TestRunParallelComposite(t *testing.T) {
	ctl := NewController(&bruteForce{}, newRand(3), nil)
	ctl.Parallelism = 4
	res, err := ctl.Run(context.Background(), 77, 1)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, uint64(7), res.P)
	assert.Equal(t, uint64(11), res.Q)
}
