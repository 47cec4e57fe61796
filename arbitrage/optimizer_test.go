package arbitrage

import (
	"math"
	"math/big"
	"testing"

	"github.com/defistate/defistate-arbitrage-go/pools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrent_Minimize(t *testing.T) {
	testCases := []struct {
		name     string
		f        func(float64) float64
		lo, hi   float64
		expected float64
	}{
		{"parabola", func(x float64) float64 { return (x - 3) * (x - 3) }, 0, 10, 3},
		{"kink", func(x float64) float64 { return math.Abs(x - 7) }, 0, 10, 7},
		{"minimum at the upper bound", func(x float64) float64 { return -x }, 0, 10, 10},
		{"minimum at the lower bound", func(x float64) float64 { return x }, 1, 10, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opt := brent{xatol: 1e-5, maxfun: 500}
			seeds := []float64{0.45 * tc.hi, 0.5 * tc.hi, 0.55 * tc.hi}
			x, fx, evals := opt.minimize(tc.f, tc.lo, tc.hi, seeds)
			assert.InDelta(t, tc.expected, x, 1e-3)
			assert.InDelta(t, tc.f(tc.expected), fx, 1e-3)
			assert.LessOrEqual(t, evals, 500)
			assert.GreaterOrEqual(t, evals, 3)
		})
	}
}

func TestBrent_RespectsEvaluationCap(t *testing.T) {
	calls := 0
	f := func(x float64) float64 {
		calls++
		return math.Sin(x)
	}
	opt := brent{xatol: 1e-12, maxfun: 5}
	_, _, evals := opt.minimize(f, 0, 100, []float64{45, 50, 55})
	assert.Equal(t, 5, evals)
	assert.Equal(t, 5, calls)
}

func TestBrent_BestSeedStartsSearch(t *testing.T) {
	// a minimum sitting on a seed is kept when nothing better exists nearby
	f := func(x float64) float64 {
		if x == 55 {
			return -1
		}
		return 0
	}
	opt := brent{xatol: 1, maxfun: 500}
	x, fx, _ := opt.minimize(f, 1, 100, []float64{45, 50, 55})
	assert.Equal(t, 55.0, x)
	assert.Equal(t, -1.0, fx)
}

func TestOptimize_Evaluations(t *testing.T) {
	f := newFixture(t)
	f.skewDai(t)
	reg := prometheus.NewRegistry()
	c, err := New(Config{ID: "evals", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, MaxInput: ether(10)},
		WithLogger(testLogger()), WithRegisterer(reg))
	require.NoError(t, err)
	defer c.Close()

	input, profit, err := c.optimize(nil)
	require.NoError(t, err)
	assert.Equal(t, "9999999795439331328", input.String())
	assert.Equal(t, "894022381131723434", profit.String())

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "arbcycle_optimizer_evaluations" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(1), h.GetSampleCount())
			assert.Equal(t, 39.0, h.GetSampleSum())
		}
	}
	assert.True(t, found)
}

func TestOptimize_MaxIterations(t *testing.T) {
	f := newFixture(t)
	f.skewDai(t)
	c := newTestCycle(t, "capped", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10), WithMaxIterations(4))

	input, profit, err := c.optimize(nil)
	require.NoError(t, err)
	assert.Positive(t, profit.Sign())
	assert.LessOrEqual(t, input.Cmp(ether(10)), 0)
}

func TestFloorAmount(t *testing.T) {
	assert.Equal(t, "1", floorAmount(0.2).String())
	assert.Equal(t, "1", floorAmount(math.NaN()).String())
	assert.Equal(t, "12", floorAmount(12.9).String())
	assert.Equal(t, "9999999795439331328", floorAmount(9999999795439331328.7).String())
	assert.Equal(t, 0, floorAmount(1e20).Cmp(new(big.Int).Mul(big.NewInt(100), ether(1))))
}
