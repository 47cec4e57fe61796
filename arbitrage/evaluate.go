package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-arbitrage-go/pools"
	uniswapv3calculator "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator"
)

// quoteLegs threads amountIn through every leg and returns the amount
// entering each leg followed by the final output, len(pools)+1 values. Any
// failure is a *ProbeError.
func (c *Cycle) quoteLegs(amountIn *big.Int, overrides *OverrideSet) ([]*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, &ProbeError{Leg: 0, Pool: c.pools[0].Address(), Err: pools.ErrInvalidAmount}
	}

	amounts := make([]*big.Int, len(c.pools)+1)
	amounts[0] = amountIn
	for i, p := range c.pools {
		v := c.vectors[i]
		addr := p.Address()

		var (
			out *big.Int
			err error
		)
		switch pool := p.(type) {
		case *pools.UniswapV2:
			out, err = pool.Quote(v.TokenIn, amounts[i], overrides.UniswapV2(addr))
		case *pools.UniswapV3:
			out, err = pool.Quote(v.TokenIn, amounts[i], overrides.UniswapV3(addr))
		case *pools.CurveStableswap:
			out, err = pool.Quote(v.TokenIn, v.TokenOut, amounts[i], overrides.Curve(addr))
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedPool, p)
		}
		if err != nil {
			return nil, &ProbeError{Leg: i, Pool: addr, Err: err}
		}
		if out == nil || out.Sign() <= 0 {
			return nil, &ProbeError{Leg: i, Pool: addr, Err: ErrZeroOutput}
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// Evaluate returns the cycle's output for amountIn of the input token. It
// reads live pool state, or the override for a pool when one is given, and
// never modifies either.
func (c *Cycle) Evaluate(amountIn *big.Int, overrides *OverrideSet) (*big.Int, error) {
	amounts, err := c.quoteLegs(amountIn, overrides)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// buildSwapAmounts re-quotes the cycle at amountIn and turns every leg into
// its swap instruction.
func (c *Cycle) buildSwapAmounts(amountIn *big.Int, overrides *OverrideSet) ([]SwapAmount, error) {
	amounts, err := c.quoteLegs(amountIn, overrides)
	if err != nil {
		return nil, err
	}

	out := make([]SwapAmount, 0, len(c.pools))
	for i, p := range c.pools {
		v := c.vectors[i]
		in, quoted := amounts[i], amounts[i+1]

		switch p.(type) {
		case *pools.UniswapV2:
			a := UniswapV2SwapAmounts{Pool: p.Address()}
			if v.ZeroForOne {
				a.Amounts = [2]*big.Int{new(big.Int), new(big.Int).Set(quoted)}
			} else {
				a.Amounts = [2]*big.Int{new(big.Int).Set(quoted), new(big.Int)}
			}
			out = append(out, a)
		case *pools.UniswapV3:
			out = append(out, UniswapV3SwapAmounts{
				Pool:              p.Address(),
				AmountSpecified:   new(big.Int).Set(in),
				ZeroForOne:        v.ZeroForOne,
				SqrtPriceLimitX96: uniswapv3calculator.DefaultSqrtPriceLimit(v.ZeroForOne),
			})
		case *pools.CurveStableswap:
			out = append(out, CurveSwapAmounts{
				Pool:         p.Address(),
				TokenIn:      v.TokenIn,
				TokenOut:     v.TokenOut,
				CoinIn:       v.CoinIn,
				CoinOut:      v.CoinOut,
				AmountIn:     new(big.Int).Set(in),
				MinAmountOut: new(big.Int).Set(quoted),
				Underlying:   v.Underlying,
			})
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedPool, p)
		}
	}
	return out, nil
}
