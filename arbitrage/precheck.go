package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-arbitrage-go/pools"
)

// profitFactorTolerance absorbs the error of approximating marginal rates
// with small finite quotes. Only factors below 1-profitFactorTolerance are
// rejected.
const profitFactorTolerance = 1e-6

var profitFactorFloor = big.NewFloat(1 - profitFactorTolerance)

// profitFactor multiplies the fee-adjusted marginal rate of every leg. Each
// leg's output is concave in its input, so no input can profit when the
// product is below one.
func (c *Cycle) profitFactor(overrides *OverrideSet) (*big.Float, error) {
	factor := big.NewFloat(1)
	for i, p := range c.pools {
		v := c.vectors[i]
		addr := p.Address()

		var (
			rate *big.Float
			err  error
		)
		switch pool := p.(type) {
		case *pools.UniswapV2:
			rate, err = pool.SpotPrice(v.TokenIn, overrides.UniswapV2(addr))
		case *pools.UniswapV3:
			rate, err = pool.SpotPrice(v.TokenIn, overrides.UniswapV3(addr))
		case *pools.CurveStableswap:
			rate, err = pool.SpotPrice(v.TokenIn, v.TokenOut, overrides.Curve(addr))
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedPool, p)
		}
		if err != nil {
			return nil, &ProbeError{Leg: i, Pool: addr, Err: err}
		}
		factor.Mul(factor, rate)
	}
	return factor, nil
}

// checkProfitFactor returns ErrNoArbitrage when the cycle cannot be
// profitable at any input.
func (c *Cycle) checkProfitFactor(overrides *OverrideSet) error {
	factor, err := c.profitFactor(overrides)
	if err != nil {
		return fmt.Errorf("%w: profit factor: %w", ErrNoArbitrage, err)
	}
	if cannotProfit(factor) {
		c.logger.Debug("profit factor below one", "cycle", c.id, "factor", factor.Text('g', 10))
		return fmt.Errorf("%w: profit factor %s", ErrNoArbitrage, factor.Text('g', 10))
	}
	return nil
}

func cannotProfit(factor *big.Float) bool {
	return factor.Cmp(profitFactorFloor) < 0
}
