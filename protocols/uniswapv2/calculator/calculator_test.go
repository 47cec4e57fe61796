package uniswapv2

import (
	"math/big"
	"reflect"
	"testing"

	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	pairAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func smallPool(feeBps uint16) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  pairAddr,
		Token0:   usdc,
		Token1:   weth,
		Reserve0: big.NewInt(100_000_000),                     // 100 USDC
		Reserve1: newBigIntFromString("50000000000000000000"), // 50 WETH (18 decimals)
		FeeBps:   feeBps,
	}
}

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name           string
		amountIn       *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		pool           uniswapv2.Pool
		expectedAmount *big.Int
		expectedErr    error
	}{
		{
			name:           "Standard Swap (Token0 -> Token1)",
			amountIn:       big.NewInt(1_000_000), // 1 USDC (6 decimals)
			tokenIn:        usdc,
			tokenOut:       weth,
			pool:           smallPool(30),
			expectedAmount: newBigIntFromString("493579017198530649"),
		},
		{
			name:           "Standard Swap (Token1 -> Token0)",
			amountIn:       newBigIntFromString("1000000000000000000"), // 1 WETH
			tokenIn:        weth,
			tokenOut:       usdc,
			pool:           smallPool(30),
			expectedAmount: big.NewInt(1955016),
		},
		{
			name:           "Swap with Different Fee",
			amountIn:       big.NewInt(1_000_000),
			tokenIn:        usdc,
			tokenOut:       weth,
			pool:           smallPool(100), // 1% fee
			expectedAmount: newBigIntFromString("490147539360332706"),
		},
		{
			name:     "Zero Liquidity",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  usdc,
			tokenOut: weth,
			pool: uniswapv2.Pool{
				Address:  pairAddr,
				Token0:   usdc,
				Token1:   weth,
				Reserve0: big.NewInt(0),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedErr: ErrInsufficientLiquidity,
		},
		{
			name:        "Nil AmountIn",
			amountIn:    nil,
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        smallPool(30),
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Zero AmountIn",
			amountIn:    big.NewInt(0),
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        smallPool(30),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Negative AmountIn",
			amountIn:    big.NewInt(-100),
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        smallPool(30),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Token Mismatch",
			amountIn:    big.NewInt(1_000_000),
			tokenIn:     dai,
			tokenOut:    weth,
			pool:        smallPool(30),
			expectedErr: ErrTokenMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountOut, err := GetAmountOut(tc.amountIn, tc.tokenIn, tc.tokenOut, tc.pool)

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAmount.String(), amountOut.String())
		})
	}
}

func TestGetAmountOut_MinimalReserveYieldsZero(t *testing.T) {
	pool := uniswapv2.Pool{
		Address:  pairAddr,
		Token0:   usdc,
		Token1:   weth,
		Reserve0: newBigIntFromString("1000000000000"),
		Reserve1: big.NewInt(1), // a single wei of WETH left
		FeeBps:   30,
	}

	for _, amountIn := range []*big.Int{big.NewInt(1), big.NewInt(1_000_000), newBigIntFromString("999999999999")} {
		out, err := GetAmountOut(amountIn, usdc, weth, pool)
		require.NoError(t, err)
		assert.Zero(t, out.Sign(), "amountIn %s", amountIn)
	}
}

func TestGetAmountIn(t *testing.T) {
	testCases := []struct {
		name           string
		amountOut      *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		pool           uniswapv2.Pool
		expectedAmount *big.Int
		expectedErr    error
	}{
		{
			name:           "Standard Swap (Token0 -> Token1)",
			amountOut:      newBigIntFromString("493579017198530649"),
			tokenIn:        usdc,
			tokenOut:       weth,
			pool:           smallPool(30),
			expectedAmount: big.NewInt(1000000),
		},
		{
			name:           "Standard Swap (Token1 -> Token0)",
			amountOut:      big.NewInt(1955016),
			tokenIn:        weth,
			tokenOut:       usdc,
			pool:           smallPool(30),
			expectedAmount: newBigIntFromString("999999498234537320"),
		},
		{
			name:        "Nil AmountOut",
			amountOut:   nil,
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Negative AmountOut",
			amountOut:   big.NewInt(-100),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Insufficient Liquidity",
			amountOut:   newBigIntFromString("60000000000000000000"), // more than the pool holds
			tokenIn:     usdc,
			tokenOut:    weth,
			pool:        smallPool(30),
			expectedErr: ErrInsufficientLiquidity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountIn, err := GetAmountIn(tc.amountOut, tc.tokenIn, tc.tokenOut, tc.pool)

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAmount.String(), amountIn.String())
		})
	}
}

func TestSimulateSwap(t *testing.T) {
	pool := smallPool(30)
	amountIn := big.NewInt(1_000_000)

	result, err := SimulateSwap(amountIn, usdc, pool)
	require.NoError(t, err)

	expectedAmountOut := newBigIntFromString("493579017198530649")
	assert.Equal(t, amountIn.String(), result.Amount0Delta.String())
	assert.Equal(t, new(big.Int).Neg(expectedAmountOut).String(), result.Amount1Delta.String())

	assert.Equal(t, new(big.Int).Add(pool.Reserve0, amountIn).String(), result.FutureState.Reserve0.String())
	assert.Equal(t, new(big.Int).Sub(pool.Reserve1, expectedAmountOut).String(), result.FutureState.Reserve1.String())
	assert.Equal(t, pool.Reserve0.String(), result.CurrentState.Reserve0.String())

	_, err = SimulateSwap(amountIn, dai, pool)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

// TestSimulateSwap_IdempotencyAndStateIsolation verifies that the simulation
// does not mutate its inputs and that returned states are deep copies.
func TestSimulateSwap_IdempotencyAndStateIsolation(t *testing.T) {
	originalPool := smallPool(30)
	amountIn := big.NewInt(1_000_000)

	result1, err1 := SimulateSwap(amountIn, usdc, originalPool)
	require.NoError(t, err1)
	result2, err2 := SimulateSwap(amountIn, usdc, originalPool)
	require.NoError(t, err2)

	t.Run("Idempotency Check", func(t *testing.T) {
		assert.True(t, reflect.DeepEqual(result1, result2), "simulation should be identical on consecutive runs")
	})

	t.Run("Deep Copy Check (Reserves)", func(t *testing.T) {
		assert.NotSame(t, originalPool.Reserve0, result1.FutureState.Reserve0)
		assert.NotSame(t, originalPool.Reserve1, result1.FutureState.Reserve1)
		assert.NotSame(t, originalPool.Reserve0, result1.CurrentState.Reserve0)
	})

	t.Run("Result Isolation Check", func(t *testing.T) {
		pristine := new(big.Int).Set(result2.FutureState.Reserve0)
		result1.FutureState.Reserve0.Add(result1.FutureState.Reserve0, big.NewInt(12345))
		assert.Equal(t, pristine.String(), result2.FutureState.Reserve0.String())
	})
}

func TestGetSpotPrice(t *testing.T) {
	pool := uniswapv2.Pool{
		Address:  pairAddr,
		Token0:   usdc,
		Token1:   weth,
		Reserve0: big.NewInt(2_000),
		Reserve1: big.NewInt(1_000),
		FeeBps:   30,
	}

	price, err := GetSpotPrice(usdc, pool)
	require.NoError(t, err)
	f, _ := price.Float64()
	assert.InDelta(t, 0.5*0.997, f, 1e-12)

	price, err = GetSpotPrice(weth, pool)
	require.NoError(t, err)
	f, _ = price.Float64()
	assert.InDelta(t, 2*0.997, f, 1e-12)

	_, err = GetSpotPrice(dai, pool)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

// result is a package-level variable to ensure the compiler does not optimize away the benchmarked function call.
var result *big.Int

func BenchmarkGetAmountOut(b *testing.B) {
	pool := smallPool(30)
	amountIn := big.NewInt(1_000_000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, _ = GetAmountOut(amountIn, usdc, weth, pool)
	}
}
