package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	uniswapv3 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator/swapmath"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator/tickbitmap"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmountIn = errors.New("amountIn must be greater than zero")
	ErrTokenMismatch   = errors.New("token mismatch")
	ErrInvalidState    = errors.New("invalid pool state")
	// ErrInsufficientLiquidity is returned when the price limit is reached before
	// the full input amount could be swapped.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")

	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q96F = new(big.Float).SetInt(Q96)

	one = big.NewInt(1)
)

// swapState represents the state of a swap as it progresses.
// It includes all temporary variables needed for the simulation to avoid allocations.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int

	// scratch
	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	stepAmountIn      *big.Int
	stepAmountOut     *big.Int
	stepFeeAmount     *big.Int
	tempAmount        *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			stepAmountIn:             new(big.Int),
			stepAmountOut:            new(big.Int),
			stepFeeAmount:            new(big.Int),
			tempAmount:               new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

// DefaultSqrtPriceLimit returns the loosest price limit the pool contract accepts
// for the given direction.
func DefaultSqrtPriceLimit(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Add(tickmath.MIN_SQRT_RATIO, one)
	}
	return new(big.Int).Sub(tickmath.MAX_SQRT_RATIO, one)
}

// ZeroForOne reports the swap direction for tokenIn, or ErrTokenMismatch.
func ZeroForOne(tokenIn common.Address, pool uniswapv3.Pool) (bool, error) {
	switch tokenIn {
	case pool.Token0:
		return true, nil
	case pool.Token1:
		return false, nil
	}
	return false, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn.Hex(), pool.Address.Hex())
}

// swap walks the initialized ticks of pool for an exact-input swap.
// Ticks are assumed complete: past the last initialized tick the swap runs
// against whatever liquidity is active toward the price limit.
func swap(
	state *swapState,
	pool uniswapv3.Pool,
	sqrtPriceLimitX96 *big.Int,
	zeroForOne bool,
) error {
	if sqrtPriceLimitX96 == nil {
		sqrtPriceLimitX96 = DefaultSqrtPriceLimit(zeroForOne)
	}
	if zeroForOne && (sqrtPriceLimitX96.Cmp(state.sqrtPriceX96) >= 0 || sqrtPriceLimitX96.Cmp(tickmath.MIN_SQRT_RATIO) <= 0) {
		return fmt.Errorf("%w: price limit %s outside (%s, current)", ErrInvalidState, sqrtPriceLimitX96, tickmath.MIN_SQRT_RATIO)
	}
	if !zeroForOne && (sqrtPriceLimitX96.Cmp(state.sqrtPriceX96) <= 0 || sqrtPriceLimitX96.Cmp(tickmath.MAX_SQRT_RATIO) >= 0) {
		return fmt.Errorf("%w: price limit %s outside (current, %s)", ErrInvalidState, sqrtPriceLimitX96, tickmath.MAX_SQRT_RATIO)
	}

	fee := new(big.Int).SetUint64(pool.Fee)

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		tickNext, initialized := tickbitmap.NextInitializedTickWithinOneWord(pool.Ticks, state.tick, zeroForOne)
		if !initialized {
			if zeroForOne {
				tickNext = tickmath.MIN_TICK
			} else {
				tickNext = tickmath.MAX_TICK
			}
		}
		if tickNext < tickmath.MIN_TICK {
			tickNext = tickmath.MIN_TICK
		} else if tickNext > tickmath.MAX_TICK {
			tickNext = tickmath.MAX_TICK
		}

		if err := tickmath.GetSqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
			return err
		}

		if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			state.targetPrice.Set(sqrtPriceLimitX96)
		} else {
			state.targetPrice.Set(state.sqrtPriceNextX96)
		}

		err := swapmath.ComputeSwapStep(
			state.sqrtPriceX96, state.stepAmountIn, state.stepAmountOut, state.stepFeeAmount,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity,
			state.amountSpecifiedRemaining,
			fee,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}

		state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
		state.amountCalculated.Add(state.amountCalculated, state.stepAmountOut)

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			if initialized {
				if net, ok := liquidityNetAt(pool.Ticks, tickNext); ok {
					state.liquidityNet.Set(net)
					if zeroForOne {
						state.liquidityNet.Neg(state.liquidityNet)
					}
					if err := liquiditymath.AddDelta(state.liquidity, state.liquidity, state.liquidityNet); err != nil {
						return fmt.Errorf("%w: crossing tick %d: %v", ErrInvalidState, tickNext, err)
					}
				}
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
		}
	}

	if state.amountSpecifiedRemaining.Sign() != 0 {
		return fmt.Errorf("%w: pool %s stopped at price limit with %s unswapped", ErrInsufficientLiquidity, pool.Address.Hex(), state.amountSpecifiedRemaining)
	}
	return nil
}

func liquidityNetAt(ticks []uniswapv3.TickInfo, index int64) (*big.Int, bool) {
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Index >= index })
	if i < len(ticks) && ticks[i].Index == index && ticks[i].LiquidityNet != nil {
		return ticks[i].LiquidityNet, true
	}
	return nil, false
}

func (s *swapState) reset(amountIn *big.Int, pool uniswapv3.Pool) {
	s.amountSpecifiedRemaining.Set(amountIn)
	s.amountCalculated.SetInt64(0)
	s.sqrtPriceX96.Set(pool.SqrtPriceX96)
	s.tick = pool.Tick
	s.liquidity.Set(pool.Liquidity)
}

func checkPool(pool uniswapv3.Pool) error {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 || pool.Liquidity == nil || pool.Liquidity.Sign() < 0 {
		return fmt.Errorf("%w: pool %s has no price or liquidity", ErrInvalidState, pool.Address.Hex())
	}
	return nil
}

// SimulateExactInSwap calculates the amount out of an exact-input swap and the
// pool state it would leave behind. A nil sqrtPriceLimitX96 means no limit.
func SimulateExactInSwap(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (uniswapv3.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return uniswapv3.SimulationResult{}, ErrInvalidAmountIn
	}
	zeroForOne, err := ZeroForOne(tokenIn, pool)
	if err != nil {
		return uniswapv3.SimulationResult{}, err
	}
	if err := checkPool(pool); err != nil {
		return uniswapv3.SimulationResult{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.reset(amountIn, pool)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return uniswapv3.SimulationResult{}, err
	}

	future := pool.Copy()
	future.SqrtPriceX96.Set(state.sqrtPriceX96)
	future.Tick = state.tick
	future.Liquidity.Set(state.liquidity)

	amountOut := new(big.Int).Set(state.amountCalculated)
	var delta0, delta1 *big.Int
	if zeroForOne {
		delta0, delta1 = new(big.Int).Set(amountIn), new(big.Int).Neg(amountOut)
	} else {
		delta0, delta1 = new(big.Int).Neg(amountOut), new(big.Int).Set(amountIn)
	}

	return uniswapv3.SimulationResult{
		Amount0Delta: delta0,
		Amount1Delta: delta1,
		CurrentState: pool.Copy(),
		FutureState:  future,
	}, nil
}

// GetAmountOut calculates the amount out for a given exact amount in.
func GetAmountOut(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmountIn
	}
	zeroForOne, err := ZeroForOne(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if err := checkPool(pool); err != nil {
		return nil, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.reset(amountIn, pool)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return nil, err
	}
	return new(big.Int).Set(state.amountCalculated), nil
}

// GetSpotPrice returns the marginal rate of tokenIn in tokenOut at the current
// price, net of the pool fee, in raw token units.
func GetSpotPrice(tokenIn common.Address, pool uniswapv3.Pool) (*big.Float, error) {
	zeroForOne, err := ZeroForOne(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if err := checkPool(pool); err != nil {
		return nil, err
	}

	// SqrtPriceX96 is sqrt(token1/token0) * 2^96.
	sqrtPrice := new(big.Float).Quo(new(big.Float).SetInt(pool.SqrtPriceX96), Q96F)
	price := new(big.Float).Mul(sqrtPrice, sqrtPrice)
	if !zeroForOne {
		price.Quo(big.NewFloat(1), price)
	}
	feeFactor := new(big.Float).SetFloat64(1 - float64(pool.Fee)/1e6)
	return price.Mul(price, feeFactor), nil
}
