package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/defistate/defistate-arbitrage-go/pools"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	uniswapv3 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdt     = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	threeCrv = common.HexToAddress("0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490")

	daiWethAddr  = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	usdcWethAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	wethUsdtAddr = common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852")
	tripoolAddr  = common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7")

	fakeContract = common.HexToAddress("0x6942000000000000000000000000000000000000")

	// skewedDaiReserve leaves DAI cheap in the DAI/WETH pair, which opens a
	// WETH → DAI → stable → WETH cycle through the 3pool.
	skewedDaiReserve = "7154631418308101780013056"
)

func fromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fromString("1000000000000000000"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Snapshots at mainnet block 19050173.

func daiWethState() uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  daiWethAddr,
		Token0:   dai,
		Token1:   weth,
		Reserve0: fromString("6504210380280092514247627"),
		Reserve1: fromString("2641882268814772168174"),
		FeeBps:   uniswapv2.DefaultFeeBps,
		Block:    19050173,
	}
}

func usdcWethState() uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  usdcWethAddr,
		Token0:   usdc,
		Token1:   weth,
		Reserve0: fromString("51264330493455"),
		Reserve1: fromString("20822226989581225186276"),
		FeeBps:   uniswapv2.DefaultFeeBps,
		Block:    19050173,
	}
}

func wethUsdtState() uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  wethUsdtAddr,
		Token0:   weth,
		Token1:   usdt,
		Reserve0: fromString("33451964234532476269546"),
		Reserve1: fromString("82374477120833"),
		FeeBps:   uniswapv2.DefaultFeeBps,
		Block:    19050173,
	}
}

func tripoolState() curvestableswap.Pool {
	return curvestableswap.Pool{
		Address:       tripoolAddr,
		LPToken:       threeCrv,
		Coins:         []common.Address{dai, usdc, usdt},
		Decimals:      []uint8{18, 6, 6},
		Balances:      []*big.Int{fromString("42217927126053167268106015"), fromString("41857454785332"), fromString("116155337005450")},
		A:             big.NewInt(2000),
		Fee:           big.NewInt(1000000),
		AdminFee:      big.NewInt(5000000000),
		Legacy:        true,
		CoinIndexType: curvestableswap.CoinIndexInt128,
		LPTotalSupply: fromString("194000000000000000000000000"),
		Block:         19050173,
	}
}

// daiWethV3State is a synthetic DAI/WETH pool priced at 1:1 with liquidity
// on [-600, 600] and [-1200, 1200].
func daiWethV3State() uniswapv3.Pool {
	return uniswapv3.Pool{
		PoolViewMinimal: uniswapv3.PoolViewMinimal{
			Address:      common.HexToAddress("0x60594a405d53811d3BC4766596EFD80fd545A270"),
			Token0:       dai,
			Token1:       weth,
			Fee:          3000,
			TickSpacing:  60,
			Tick:         0,
			Liquidity:    fromString("1500000000000000000000"),
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		},
		Ticks: []uniswapv3.TickInfo{
			{Index: -1200, LiquidityGross: fromString("500000000000000000000"), LiquidityNet: fromString("500000000000000000000")},
			{Index: -600, LiquidityGross: fromString("1000000000000000000000"), LiquidityNet: fromString("1000000000000000000000")},
			{Index: 600, LiquidityGross: fromString("1000000000000000000000"), LiquidityNet: fromString("-1000000000000000000000")},
			{Index: 1200, LiquidityGross: fromString("500000000000000000000"), LiquidityNet: fromString("-500000000000000000000")},
		},
	}
}

type fixture struct {
	daiWeth  *pools.UniswapV2
	usdcWeth *pools.UniswapV2
	wethUsdt *pools.UniswapV2
	tripool  *pools.CurveStableswap
	v3       *pools.UniswapV3
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	var err error
	f.daiWeth, err = pools.NewUniswapV2(daiWethState())
	require.NoError(t, err)
	f.usdcWeth, err = pools.NewUniswapV2(usdcWethState())
	require.NoError(t, err)
	f.wethUsdt, err = pools.NewUniswapV2(wethUsdtState())
	require.NoError(t, err)
	f.tripool, err = pools.NewCurveStableswap(tripoolState())
	require.NoError(t, err)
	f.v3, err = pools.NewUniswapV3(daiWethV3State())
	require.NoError(t, err)
	return f
}

// skewDai moves the DAI/WETH pair to the skewed reserve.
func (f *fixture) skewDai(t *testing.T) {
	t.Helper()
	state := daiWethState()
	state.Reserve0 = fromString(skewedDaiReserve)
	_, err := f.daiWeth.Update(state)
	require.NoError(t, err)
}

func newTestCycle(t *testing.T, id string, ps []pools.Pool, maxInput *big.Int, opts ...Option) *Cycle {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger()), WithRegisterer(prometheus.NewRegistry())}, opts...)
	c, err := New(Config{ID: id, InputToken: weth, Pools: ps, MaxInput: maxInput}, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// fakeAllowances serves fixed allowances and records lookups.
type fakeAllowances struct {
	mu      sync.Mutex
	amounts map[common.Address]*big.Int
	calls   int
}

func (f *fakeAllowances) Allowance(_ context.Context, token, _, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if a, ok := f.amounts[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}
