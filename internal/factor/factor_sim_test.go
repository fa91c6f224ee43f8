package factor_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qfactor/internal/factor"
	"qfactor/internal/order"
	"qfactor/internal/shor"
	"qfactor/internal/statevec"
	"qfactor/internal/synth"
)

func pipeline(t *testing.T, seed uint64) *factor.Factorizer {
	t.Helper()
	exec, err := statevec.New(statevec.Config{}, rand.New(rand.NewPCG(seed, 1)), nil)
	require.NoError(t, err)
	s, err := synth.New(synth.DefaultCacheSize, nil)
	require.NoError(t, err)
	finder := order.NewFinder(exec, s, nil)
	finder.MaxAttempts = 100
	return factor.New(shor.NewController(finder, rand.New(rand.NewPCG(seed, 2)), nil), nil)
}

func TestEndToEndSmall(t *testing.T) {
	f := pipeline(t, 1)
	for _, c := range []struct {
		n    uint64
		want factor.Factors
	}{
		{4, factor.Factors{P: 2, Q: 2}},
		{9, factor.Factors{P: 3, Q: 3}},
	} {
		got, ok, err := f.Factorize(context.Background(), c.n, 0.95)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, c.want, got)
	}
	for _, n := range []uint64{2, 3} {
		_, ok, err := f.Factorize(context.Background(), n, 0.95)
		require.NoError(t, err)
		assert.False(t, ok, "n=%d", n)
	}
}

func TestEndToEnd11IsPrime(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates 17 qubit circuits")
	}
	_, ok, err := pipeline(t, 2).Factorize(context.Background(), 11, 0.95)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndToEnd15(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates 18 qubit circuits")
	}
	got, ok, err := pipeline(t, 3).Factorize(context.Background(), 15, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, factor.Factors{P: 3, Q: 5}, got)
}
