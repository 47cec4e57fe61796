package arbitrage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapAmount is the resolved instruction for one leg. It is implemented by
// UniswapV2SwapAmounts, UniswapV3SwapAmounts and CurveSwapAmounts only.
type SwapAmount interface {
	PoolAddress() common.Address
	swapAmount()
}

// UniswapV2SwapAmounts are the amount0Out/amount1Out arguments of pair.swap.
type UniswapV2SwapAmounts struct {
	Pool    common.Address
	Amounts [2]*big.Int
}

// UniswapV3SwapAmounts are the arguments of pool.swap. AmountSpecified is
// positive (exact input).
type UniswapV3SwapAmounts struct {
	Pool              common.Address
	AmountSpecified   *big.Int
	ZeroForOne        bool
	SqrtPriceLimitX96 *big.Int
}

// CurveSwapAmounts are the arguments of exchange or exchange_underlying.
type CurveSwapAmounts struct {
	Pool         common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	CoinIn       int
	CoinOut      int
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Underlying   bool
}

func (a UniswapV2SwapAmounts) PoolAddress() common.Address { return a.Pool }
func (a UniswapV3SwapAmounts) PoolAddress() common.Address { return a.Pool }
func (a CurveSwapAmounts) PoolAddress() common.Address     { return a.Pool }

func (UniswapV2SwapAmounts) swapAmount() {}
func (UniswapV3SwapAmounts) swapAmount() {}
func (CurveSwapAmounts) swapAmount()     {}

// CalculationResult is the outcome of a profitable calculation. Profit is
// always denominated in the input token.
type CalculationResult struct {
	ID           string
	InputToken   common.Address
	ProfitToken  common.Address
	InputAmount  *big.Int
	ProfitAmount *big.Int
	SwapAmounts  []SwapAmount
}

// Payload is one call of the arbitrage transaction bundle.
type Payload struct {
	Target   common.Address
	Calldata []byte
	Value    *big.Int
}
