package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-arbitrage-go/calldata"
	"github.com/defistate/defistate-arbitrage-go/chains"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ErrCallFailed wraps every failed eth_call made by a Reader.
var ErrCallFailed = errors.New("contract call failed")

// Reader reads pool and token state with eth_call.
type Reader struct {
	caller chains.Caller
}

func NewReader(caller chains.Caller) *Reader {
	return &Reader{caller: caller}
}

func (r *Reader) call(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCallFailed, to.Hex(), err)
	}
	return out, nil
}

// Allowance returns token.allowance(owner, spender) at the latest block.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := calldata.Allowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, token, data, nil)
	if err != nil {
		return nil, err
	}
	return calldata.DecodeAllowance(out)
}

// UniswapV2 returns a copy of state with the reserves read at block.
func (r *Reader) UniswapV2(ctx context.Context, state uniswapv2.Pool, block *big.Int) (uniswapv2.Pool, error) {
	data, err := calldata.UniswapV2GetReserves()
	if err != nil {
		return uniswapv2.Pool{}, err
	}
	out, err := r.call(ctx, state.Address, data, block)
	if err != nil {
		return uniswapv2.Pool{}, err
	}
	r0, r1, _, err := calldata.DecodeReserves(out)
	if err != nil {
		return uniswapv2.Pool{}, err
	}

	next := state.Copy()
	next.Reserve0, next.Reserve1 = r0, r1
	next.Block = blockNumber(block)
	return next, nil
}

// UniswapV3 returns a copy of state with slot0 and the active liquidity read
// at block. Ticks are carried over. When the carried ticks no longer add up
// to the active liquidity the snapshot is marked sparse.
func (r *Reader) UniswapV3(ctx context.Context, state uniswapv3.Pool, block *big.Int) (uniswapv3.Pool, error) {
	data, err := calldata.UniswapV3Slot0()
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	out, err := r.call(ctx, state.Address, data, block)
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	sqrtPrice, tick, err := calldata.DecodeSlot0(out)
	if err != nil {
		return uniswapv3.Pool{}, err
	}

	data, err = calldata.UniswapV3Liquidity()
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	out, err = r.call(ctx, state.Address, data, block)
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	liquidity, err := calldata.DecodeLiquidity(out)
	if err != nil {
		return uniswapv3.Pool{}, err
	}

	next := state.Copy()
	next.SqrtPriceX96, next.Tick, next.Liquidity = sqrtPrice, tick, liquidity
	next.Sparse = state.Sparse || activeLiquidity(next.Ticks, tick).Cmp(liquidity) != 0
	next.Block = blockNumber(block)
	return next, nil
}

// activeLiquidity sums liquidityNet over the initialized ticks at or below
// tick. Ticks are sorted ascending.
func activeLiquidity(ticks []uniswapv3.TickInfo, tick int64) *big.Int {
	sum := new(big.Int)
	for _, t := range ticks {
		if t.Index > tick {
			break
		}
		if t.LiquidityNet != nil {
			sum.Add(sum, t.LiquidityNet)
		}
	}
	return sum
}

// Curve returns a copy of state with balances, A and LP supply read at
// block, and for a metapool its base pool and virtual price. A() already
// accounts for any ramp in progress, so the ramp is dropped.
func (r *Reader) Curve(ctx context.Context, state curvestableswap.Pool, block *big.Int, timestamp uint64) (curvestableswap.Pool, error) {
	next := state.Copy()
	indexType := state.CoinIndexType

	for i := range next.Coins {
		data, err := calldata.CurveBalances(indexType, i)
		if err != nil {
			return curvestableswap.Pool{}, err
		}
		balance, err := r.readUint(ctx, state.Address, indexType, "balances", data, block)
		if err != nil {
			return curvestableswap.Pool{}, err
		}
		next.Balances[i] = balance
	}

	data, err := calldata.CurveA(indexType)
	if err != nil {
		return curvestableswap.Pool{}, err
	}
	if next.A, err = r.readUint(ctx, state.Address, indexType, "A", data, block); err != nil {
		return curvestableswap.Pool{}, err
	}
	next.Ramp = nil

	if state.LPToken != (common.Address{}) {
		data, err := calldata.TotalSupply()
		if err != nil {
			return curvestableswap.Pool{}, err
		}
		out, err := r.call(ctx, state.LPToken, data, block)
		if err != nil {
			return curvestableswap.Pool{}, err
		}
		if next.LPTotalSupply, err = calldata.DecodeTotalSupply(out); err != nil {
			return curvestableswap.Pool{}, err
		}
	}

	if state.Base != nil {
		base, err := r.Curve(ctx, *state.Base, block, timestamp)
		if err != nil {
			return curvestableswap.Pool{}, fmt.Errorf("base pool %s: %w", state.Base.Address.Hex(), err)
		}
		next.Base = &base

		data, err := calldata.CurveVirtualPrice(base.CoinIndexType)
		if err != nil {
			return curvestableswap.Pool{}, err
		}
		if next.BaseVirtualPrice, err = r.readUint(ctx, base.Address, base.CoinIndexType, "get_virtual_price", data, block); err != nil {
			return curvestableswap.Pool{}, err
		}
	}

	next.Timestamp = timestamp
	next.Block = blockNumber(block)
	return next, nil
}

func (r *Reader) readUint(ctx context.Context, to common.Address, indexType, method string, data []byte, block *big.Int) (*big.Int, error) {
	out, err := r.call(ctx, to, data, block)
	if err != nil {
		return nil, err
	}
	return calldata.DecodeCurveUint(indexType, method, out)
}

func blockNumber(block *big.Int) uint64 {
	if block == nil || !block.IsUint64() {
		return 0
	}
	return block.Uint64()
}
