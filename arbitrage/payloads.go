package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-arbitrage-go/calldata"
	"github.com/defistate/defistate-arbitrage-go/pools"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// AllowanceReader looks up ERC-20 allowances.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// GeneratePayloads encodes the calls that execute amounts from the contract
// at from. A first V2 pool is funded by a transfer of amountIn, and every
// V2 or V3 swap pays the next pool directly when that pool is V2. Curve
// legs are preceded by an approval when the current allowance does not
// cover them, or is not already unlimited when infiniteApproval is set.
// Curve pays out to from, so a V2 pool after a Curve leg is funded by a
// transfer of the quoted output.
func (c *Cycle) GeneratePayloads(ctx context.Context, from common.Address, amountIn *big.Int, amounts []SwapAmount, infiniteApproval bool) ([]Payload, error) {
	if len(amounts) == 0 {
		return nil, ErrEmptySwapAmounts
	}
	if len(amounts) != len(c.pools) {
		return nil, fmt.Errorf("%w: %d swap amounts for %d pools", ErrPrecondition, len(amounts), len(c.pools))
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrPrecondition)
	}

	var payloads []Payload
	if _, ok := c.pools[0].(*pools.UniswapV2); ok {
		data, err := calldata.Transfer(c.pools[0].Address(), amountIn)
		if err != nil {
			return nil, fmt.Errorf("encoding input transfer: %w", err)
		}
		payloads = append(payloads, newPayload(c.inputToken, data))
	}

	for i, p := range c.pools {
		if amounts[i].PoolAddress() != p.Address() {
			return nil, fmt.Errorf("%w: swap amount %d is for pool %s, expected %s",
				ErrPrecondition, i, amounts[i].PoolAddress().Hex(), p.Address().Hex())
		}

		destination := from
		if i+1 < len(c.pools) {
			if _, ok := c.pools[i+1].(*pools.UniswapV2); ok {
				destination = c.pools[i+1].Address()
			}
		}

		var (
			leg []Payload
			err error
		)
		switch pool := p.(type) {
		case *pools.UniswapV2:
			leg, err = uniswapV2Payload(pool, amounts[i], destination)
		case *pools.UniswapV3:
			leg, err = uniswapV3Payload(pool, amounts[i], destination)
		case *pools.CurveStableswap:
			leg, err = c.curvePayloads(ctx, pool, amounts[i], from, destination, infiniteApproval)
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedPool, p)
		}
		if err != nil {
			return nil, fmt.Errorf("payload for leg %d (pool %s): %w", i, p.Address().Hex(), err)
		}
		c.logger.Debug("payload built", "cycle", c.id, "leg", i, "pool", p.Address(), "destination", destination)
		payloads = append(payloads, leg...)
	}
	return payloads, nil
}

func uniswapV2Payload(pool *pools.UniswapV2, amount SwapAmount, to common.Address) ([]Payload, error) {
	a, ok := amount.(UniswapV2SwapAmounts)
	if !ok {
		return nil, fmt.Errorf("%w: expected UniswapV2SwapAmounts, got %T", ErrPrecondition, amount)
	}
	data, err := calldata.UniswapV2Swap(a.Amounts[0], a.Amounts[1], to, nil)
	if err != nil {
		return nil, err
	}
	return []Payload{newPayload(pool.Address(), data)}, nil
}

func uniswapV3Payload(pool *pools.UniswapV3, amount SwapAmount, recipient common.Address) ([]Payload, error) {
	a, ok := amount.(UniswapV3SwapAmounts)
	if !ok {
		return nil, fmt.Errorf("%w: expected UniswapV3SwapAmounts, got %T", ErrPrecondition, amount)
	}
	data, err := calldata.UniswapV3Swap(recipient, a.ZeroForOne, a.AmountSpecified, a.SqrtPriceLimitX96, nil)
	if err != nil {
		return nil, err
	}
	return []Payload{newPayload(pool.Address(), data)}, nil
}

// curvePayloads approves the pool if needed and exchanges. The output
// returns to owner and is forwarded to destination when that is another
// pool.
func (c *Cycle) curvePayloads(ctx context.Context, pool *pools.CurveStableswap, amount SwapAmount, owner, destination common.Address, infiniteApproval bool) ([]Payload, error) {
	a, ok := amount.(CurveSwapAmounts)
	if !ok {
		return nil, fmt.Errorf("%w: expected CurveSwapAmounts, got %T", ErrPrecondition, amount)
	}
	if c.allowances == nil {
		return nil, fmt.Errorf("%w: an allowance reader is required for curve legs", ErrPrecondition)
	}

	current, err := c.allowances.Allowance(ctx, a.TokenIn, owner, pool.Address())
	if err != nil {
		return nil, fmt.Errorf("reading allowance of %s: %w", a.TokenIn.Hex(), err)
	}
	if current == nil {
		current = new(big.Int)
	}

	var approve *big.Int
	switch {
	case infiniteApproval && current.Cmp(math.MaxBig256) != 0:
		approve = math.MaxBig256
	case !infiniteApproval && current.Cmp(a.AmountIn) < 0:
		approve = a.AmountIn
	}

	var out []Payload
	if approve != nil {
		data, err := calldata.Approve(pool.Address(), approve)
		if err != nil {
			return nil, err
		}
		out = append(out, newPayload(a.TokenIn, data))
	}

	data, err := calldata.CurveExchange(pool.State().CoinIndexType, a.CoinIn, a.CoinOut, a.AmountIn, a.MinAmountOut, a.Underlying)
	if err != nil {
		return nil, err
	}
	out = append(out, newPayload(pool.Address(), data))

	if destination != owner {
		data, err := calldata.Transfer(destination, a.MinAmountOut)
		if err != nil {
			return nil, fmt.Errorf("encoding transfer to %s: %w", destination.Hex(), err)
		}
		out = append(out, newPayload(a.TokenOut, data))
	}
	return out, nil
}

func newPayload(target common.Address, data []byte) Payload {
	return Payload{Target: target, Calldata: data, Value: new(big.Int)}
}
