package arbitrage

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-arbitrage-go/pools"
	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfig(t *testing.T) {
	f := newFixture(t)

	daiUsdc, err := pools.NewUniswapV2(uniswapv2.Pool{
		Address:  common.HexToAddress("0xAE461cA67B15dc8dc81CE7615e0320dA1A9aB8D5"),
		Token0:   dai,
		Token1:   usdc,
		Reserve0: fromString("1000000000000000000000000"),
		Reserve1: fromString("1000000000000"),
		FeeBps:   uniswapv2.DefaultFeeBps,
	})
	require.NoError(t, err)

	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing id", cfg: Config{InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.daiWeth}}},
		{name: "missing input token", cfg: Config{ID: "x", Pools: []pools.Pool{f.daiWeth, f.daiWeth}}},
		{name: "nil pool", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth, nil}}},
		{name: "non-positive max input", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.daiWeth}, MaxInput: big.NewInt(0)}},
		{name: "single pool", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth}}},
		{name: "input token not in first pool", cfg: Config{ID: "x", InputToken: usdt, Pools: []pools.Pool{f.daiWeth, f.daiWeth}}},
		{name: "path not closed", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth, daiUsdc}}},
		{name: "curve pool first", cfg: Config{ID: "x", InputToken: dai, Pools: []pools.Pool{f.tripool, f.daiWeth}}},
		{name: "curve pool last", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.tripool}}},
		{name: "curve pool shares two tokens with next pool", cfg: Config{ID: "x", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.tripool, daiUsdc}}},
		{name: "curve input token not a coin", cfg: Config{ID: "x", InputToken: dai, Pools: []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, WithLogger(testLogger()))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestNew_DerivesVectors(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "dai-3pool-usdt", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10))

	vectors := c.Vectors()
	require.Len(t, vectors, 3)

	assert.Equal(t, SwapVector{Kind: pools.KindUniswapV2, TokenIn: weth, TokenOut: dai, ZeroForOne: false}, vectors[0])
	assert.Equal(t, SwapVector{Kind: pools.KindCurveStableswap, TokenIn: dai, TokenOut: usdt, CoinIn: 0, CoinOut: 2}, vectors[1])
	assert.Equal(t, SwapVector{Kind: pools.KindUniswapV2, TokenIn: usdt, TokenOut: weth, ZeroForOne: false}, vectors[2])

	for i := 1; i < len(vectors); i++ {
		assert.Equal(t, vectors[i-1].TokenOut, vectors[i].TokenIn, "leg %d", i)
	}
	assert.Equal(t, weth, vectors[len(vectors)-1].TokenOut)
}

func TestNew_DefaultsAndGetters(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "defaults", []pools.Pool{f.daiWeth, f.tripool, f.usdcWeth}, nil)

	assert.Equal(t, "defaults", c.ID())
	assert.Equal(t, weth, c.InputToken())
	assert.Equal(t, DefaultMaxInput.String(), c.MaxInput().String())
	assert.Equal(t, DefaultMaxIterations, c.maxIterations)
	assert.Len(t, c.Pools(), 3)
	assert.Equal(t,
		daiWethAddr.Hex()+" → "+tripoolAddr.Hex()+" → "+usdcWethAddr.Hex(),
		c.Name(),
	)

	// the returned max input is a copy
	c.MaxInput().SetInt64(1)
	assert.Equal(t, DefaultMaxInput.String(), c.MaxInput().String())
}

func TestCalculate_SkewedReserves(t *testing.T) {
	testCases := []struct {
		name           string
		last           func(f *fixture) pools.Pool
		expectedInput  string
		expectedProfit string
		expectedCoin   int
		expectedOut    []string
	}{
		{
			name:           "through USDT",
			last:           func(f *fixture) pools.Pool { return f.wethUsdt },
			expectedInput:  "9999999795439331328",
			expectedProfit: "894022381131723434",
			expectedCoin:   2,
			expectedOut:    []string{"26898811304723776181132", "26915695095", "10894022176571054762"},
		},
		{
			name:           "through USDC",
			last:           func(f *fixture) pools.Pool { return f.usdcWeth },
			expectedInput:  "9999999795439331328",
			expectedProfit: "885916652246867996",
			expectedCoin:   1,
			expectedOut:    []string{"26898811304723776181132", "26895836834", "10885916447686199324"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.skewDai(t)
			c := newTestCycle(t, tc.name, []pools.Pool{f.daiWeth, f.tripool, tc.last(f)}, ether(10))

			result, err := c.Calculate()
			require.NoError(t, err)

			assert.Equal(t, tc.name, result.ID)
			assert.Equal(t, weth, result.InputToken)
			assert.Equal(t, weth, result.ProfitToken)
			assert.Equal(t, tc.expectedInput, result.InputAmount.String())
			assert.Equal(t, tc.expectedProfit, result.ProfitAmount.String())
			require.Len(t, result.SwapAmounts, 3)

			v2First, ok := result.SwapAmounts[0].(UniswapV2SwapAmounts)
			require.True(t, ok)
			assert.Equal(t, daiWethAddr, v2First.Pool)
			assert.Equal(t, tc.expectedOut[0], v2First.Amounts[0].String())
			assert.Equal(t, "0", v2First.Amounts[1].String())

			curve, ok := result.SwapAmounts[1].(CurveSwapAmounts)
			require.True(t, ok)
			assert.Equal(t, tripoolAddr, curve.Pool)
			assert.Equal(t, dai, curve.TokenIn)
			assert.Equal(t, 0, curve.CoinIn)
			assert.Equal(t, tc.expectedCoin, curve.CoinOut)
			assert.False(t, curve.Underlying)
			assert.Equal(t, tc.expectedOut[0], curve.AmountIn.String())
			assert.Equal(t, tc.expectedOut[1], curve.MinAmountOut.String())

			v2Last, ok := result.SwapAmounts[2].(UniswapV2SwapAmounts)
			require.True(t, ok)
			if v2Last.Pool == wethUsdtAddr {
				// WETH is token0 of WETH/USDT
				assert.Equal(t, tc.expectedOut[2], v2Last.Amounts[0].String())
				assert.Equal(t, "0", v2Last.Amounts[1].String())
			} else {
				assert.Equal(t, "0", v2Last.Amounts[0].String())
				assert.Equal(t, tc.expectedOut[2], v2Last.Amounts[1].String())
			}

			out, err := c.Evaluate(result.InputAmount, nil)
			require.NoError(t, err)
			assert.Equal(t, new(big.Int).Add(result.InputAmount, result.ProfitAmount).String(), out.String())
		})
	}
}

func TestCalculate_NoArbitrageAtMarketReserves(t *testing.T) {
	f := newFixture(t)
	stables := map[string]pools.Pool{"dai": f.daiWeth, "usdc": f.usdcWeth, "usdt": f.wethUsdt}

	permutations := [][2]string{
		{"dai", "usdc"}, {"dai", "usdt"},
		{"usdc", "dai"}, {"usdc", "usdt"},
		{"usdt", "dai"}, {"usdt", "usdc"},
	}
	for _, perm := range permutations {
		t.Run(perm[0]+"-"+perm[1], func(t *testing.T) {
			c := newTestCycle(t, perm[0]+"-"+perm[1], []pools.Pool{stables[perm[0]], f.tripool, stables[perm[1]]}, ether(10))
			result, err := c.Calculate()
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrNoArbitrage)
		})
	}
}

func TestCalculate_OverridesDoNotTouchLiveState(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "override", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10))

	skewed := daiWethState()
	skewed.Reserve0 = fromString(skewedDaiReserve)

	result, err := c.Calculate(Override{Pool: f.daiWeth, State: skewed})
	require.NoError(t, err)
	assert.Equal(t, "894022381131723434", result.ProfitAmount.String())

	assert.Equal(t, "6504210380280092514247627", f.daiWeth.State().Reserve0.String())
	_, err = c.Calculate()
	assert.ErrorIs(t, err, ErrNoArbitrage)
}

func TestBuildSwapAmounts_Repeatable(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "repeat", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10))

	skewed := daiWethState()
	skewed.Reserve0 = fromString(skewedDaiReserve)
	withSkew, err := ResolveOverrides([]Override{{Pool: f.daiWeth, State: skewed}})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		overrides *OverrideSet
	}{
		{name: "live state", overrides: nil},
		{name: "overridden state", overrides: withSkew},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			daiWethBefore := f.daiWeth.State()
			tripoolBefore := f.tripool.State()
			wethUsdtBefore := f.wethUsdt.State()

			first, err := c.buildSwapAmounts(ether(10), tc.overrides)
			require.NoError(t, err)
			second, err := c.buildSwapAmounts(ether(10), tc.overrides)
			require.NoError(t, err)

			require.Len(t, first, 3)
			assert.Equal(t, first, second)

			assert.Equal(t, daiWethBefore, f.daiWeth.State())
			assert.Equal(t, tripoolBefore, f.tripool.State())
			assert.Equal(t, wethUsdtBefore, f.wethUsdt.State())
		})
	}
}

func TestCalculate_ProfitFactorCheck(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "precheck", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10), WithProfitFactorCheck())

	factor, err := c.profitFactor(nil)
	require.NoError(t, err)
	assert.Equal(t, -1, factor.Cmp(big.NewFloat(1)))

	_, err = c.Calculate()
	assert.ErrorIs(t, err, ErrNoArbitrage)

	f.skewDai(t)
	factor, err = c.profitFactor(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, factor.Cmp(big.NewFloat(1)))

	result, err := c.Calculate()
	require.NoError(t, err)
	assert.Equal(t, "894022381131723434", result.ProfitAmount.String())
}

func TestCannotProfit(t *testing.T) {
	testCases := []struct {
		factor   float64
		expected bool
	}{
		{factor: 0.99, expected: true},
		{factor: 0.99999, expected: true},
		{factor: 0.9999995, expected: false},
		{factor: 1, expected: false},
		{factor: 1.01, expected: false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, cannotProfit(big.NewFloat(tc.factor)), "factor %v", tc.factor)
	}
}

func TestCalculate_UniswapV3Leg(t *testing.T) {
	f := newFixture(t)
	// WETH buys ~2460 DAI on the pair and the V3 pool sells WETH for DAI 1:1.
	c := newTestCycle(t, "v3", []pools.Pool{f.daiWeth, f.v3}, fromString("10000000000000000"))

	result, err := c.Calculate()
	require.NoError(t, err)
	assert.Positive(t, result.ProfitAmount.Sign())
	require.Len(t, result.SwapAmounts, 2)

	v3, ok := result.SwapAmounts[1].(UniswapV3SwapAmounts)
	require.True(t, ok)
	assert.True(t, v3.ZeroForOne)
	assert.Positive(t, v3.AmountSpecified.Sign())
	// MIN_SQRT_RATIO + 1
	assert.Equal(t, "4295128740", v3.SqrtPriceLimitX96.String())
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "evaluate", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10))

	t.Run("is pure", func(t *testing.T) {
		first, err := c.Evaluate(ether(1), nil)
		require.NoError(t, err)
		second, err := c.Evaluate(ether(1), nil)
		require.NoError(t, err)
		assert.Equal(t, first.String(), second.String())
		assert.Equal(t, "2641882268814772168174", f.daiWeth.State().Reserve1.String())
	})

	t.Run("non-positive amount is a probe error", func(t *testing.T) {
		for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
			_, err := c.Evaluate(amount, nil)
			var probe *ProbeError
			require.ErrorAs(t, err, &probe)
			assert.Equal(t, 0, probe.Leg)
			assert.ErrorIs(t, err, pools.ErrInvalidAmount)
		}
	})

	t.Run("zero output is a probe error", func(t *testing.T) {
		drained := daiWethState()
		drained.Reserve0 = big.NewInt(1)
		set, err := ResolveOverrides([]Override{{Pool: f.daiWeth, State: drained}})
		require.NoError(t, err)

		_, err = c.Evaluate(ether(1), set)
		var probe *ProbeError
		require.ErrorAs(t, err, &probe)
		assert.Equal(t, 0, probe.Leg)
		assert.Equal(t, daiWethAddr, probe.Pool)
		assert.ErrorIs(t, err, ErrZeroOutput)
	})

	t.Run("no liquidity makes calculate report no arbitrage", func(t *testing.T) {
		drained := daiWethState()
		drained.Reserve0 = big.NewInt(1)
		_, err := c.Calculate(Override{Pool: f.daiWeth, State: drained})
		assert.ErrorIs(t, err, ErrNoArbitrage)
		assert.ErrorIs(t, err, ErrZeroOutput)
	})
}

func TestObserverCache(t *testing.T) {
	f := newFixture(t)
	c := newTestCycle(t, "observer", []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, ether(10))

	assert.Empty(t, c.PoolStates())
	assert.Empty(t, c.ChangedLegs())

	f.skewDai(t)
	tri := tripoolState()
	tri.Balances[0] = fromString("42217927126053167268106016")
	_, err := f.tripool.Update(tri)
	require.NoError(t, err)

	states := c.PoolStates()
	require.Len(t, states, 2)
	v2, ok := states[daiWethAddr].(uniswapv2.Pool)
	require.True(t, ok)
	assert.Equal(t, skewedDaiReserve, v2.Reserve0.String())
	_, ok = states[tripoolAddr]
	assert.True(t, ok)

	assert.Equal(t, []int{0, 1}, c.ChangedLegs())
	assert.Empty(t, c.ChangedLegs())

	c.Close()
	next := wethUsdtState()
	next.Reserve1 = big.NewInt(1)
	_, err = f.wethUsdt.Update(next)
	require.NoError(t, err)
	assert.Empty(t, c.ChangedLegs())
	assert.Len(t, c.PoolStates(), 2)
}

func TestMetrics_SharedRegistry(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()

	a, err := New(Config{ID: "a", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.tripool, f.wethUsdt}, MaxInput: ether(10)},
		WithLogger(testLogger()), WithRegisterer(reg))
	require.NoError(t, err)
	defer a.Close()
	b, err := New(Config{ID: "b", InputToken: weth, Pools: []pools.Pool{f.daiWeth, f.tripool, f.usdcWeth}, MaxInput: ether(10)},
		WithLogger(testLogger()), WithRegisterer(reg))
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Calculate()
	assert.ErrorIs(t, err, ErrNoArbitrage)
	_, err = b.Calculate()
	assert.ErrorIs(t, err, ErrNoArbitrage)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "arbcycle_calculations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var cycle, outcome string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "cycle":
					cycle = l.GetValue()
				case "outcome":
					outcome = l.GetValue()
				}
			}
			counts[cycle+"/"+outcome] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"a/no_arbitrage": 1, "b/no_arbitrage": 1}, counts)
}
