package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	// ErrInvalidAmount is returned when an input/output amount is not strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when a reserve is empty or an amountOut
	// is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	// Reusable objects for GetAmountOut
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	// Reusable objects for GetAmountIn
	numeratorIn   *big.Int
	denominatorIn *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for an exact-input swap.
func GetAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountIn calculates the required input amount for a desired output.
func GetAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, pool)
}

// SimulateSwap calculates the result of an exact-input swap and the pool state it
// would leave behind. The input snapshot is never modified.
func SimulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	pool uniswapv2.Pool,
) (uniswapv2.SimulationResult, error) {
	tokenOut, err := otherToken(tokenIn, pool)
	if err != nil {
		return uniswapv2.SimulationResult{}, err
	}

	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return uniswapv2.SimulationResult{}, err
	}

	future := pool.Copy()
	var delta0, delta1 *big.Int
	if tokenIn == pool.Token0 {
		delta0 = new(big.Int).Set(amountIn)
		delta1 = new(big.Int).Neg(amountOut)
	} else {
		delta0 = new(big.Int).Neg(amountOut)
		delta1 = new(big.Int).Set(amountIn)
	}
	future.Reserve0.Add(future.Reserve0, delta0)
	future.Reserve1.Add(future.Reserve1, delta1)

	return uniswapv2.SimulationResult{
		Amount0Delta: delta0,
		Amount1Delta: delta1,
		CurrentState: pool.Copy(),
		FutureState:  future,
	}, nil
}

// getAmountOut is the internal calculation method that uses the pre-allocated fields.
func (c *Calculator) getAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has an empty reserve", ErrInsufficientLiquidity, pool.Address.Hex())
	}

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

// getAmountIn is the internal calculation method for finding the required input for a desired output.
func (c *Calculator) getAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	if c.denominatorIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - feeBps)) + 1
	amountIn := new(big.Int).Div(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// GetReserves returns the reserves for the given token pair, ordered in the swap direction.
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == pool.Token0 && tokenOut == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenIn == pool.Token1 && tokenOut == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

// GetSpotPrice returns the marginal rate of tokenIn in tokenOut at zero size,
// net of the pool fee and in raw token units (no decimal adjustment).
func GetSpotPrice(tokenIn common.Address, pool uniswapv2.Pool) (*big.Float, error) {
	tokenOut, err := otherToken(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has an empty reserve", ErrInsufficientLiquidity, pool.Address.Hex())
	}

	price := new(big.Float).Quo(new(big.Float).SetInt(reserveOut), new(big.Float).SetInt(reserveIn))
	feeFactor := new(big.Float).Quo(
		new(big.Float).SetInt64(10000-int64(pool.FeeBps)),
		new(big.Float).SetInt(basisPointDivisor),
	)
	return price.Mul(price, feeFactor), nil
}

func otherToken(tokenIn common.Address, pool uniswapv2.Pool) (common.Address, error) {
	switch tokenIn {
	case pool.Token0:
		return pool.Token1, nil
	case pool.Token1:
		return pool.Token0, nil
	}
	return common.Address{}, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn.Hex(), pool.Address.Hex())
}
