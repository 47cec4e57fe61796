package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolViewMinimal provides a view of a single Uniswap V3 pool's slot0 and
// active liquidity.
type PoolViewMinimal struct {
	Address      common.Address `json:"address" yaml:"address"`
	Token0       common.Address `json:"token0" yaml:"token0"`
	Token1       common.Address `json:"token1" yaml:"token1"`
	Fee          uint64         `json:"fee" yaml:"fee"` // hundredths of a bip, i.e 3000 for 0.3%
	TickSpacing  uint64         `json:"tickSpacing" yaml:"tickSpacing"`
	Tick         int64          `json:"tick" yaml:"tick"`
	Liquidity    *big.Int       `json:"liquidity" yaml:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96" yaml:"sqrtPriceX96"`
}

// TickInfo represents the liquidity information about an initialized tick.
// Presence of this object implicitly means the tick is initialized.
type TickInfo struct {
	Index          int64    `json:"index" yaml:"index"`
	LiquidityGross *big.Int `json:"liquidityGross" yaml:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet" yaml:"liquidityNet"`
}

// Pool is the fully enriched view of a pool, combining the minimal
// core data with the detailed tick liquidity information.
// Ticks must be sorted by Index.
type Pool struct {
	PoolViewMinimal `json:",inline" yaml:",inline"`
	Ticks           []TickInfo `json:"ticks" yaml:"ticks"`
	// Sparse is set when only part of the tick range has been loaded.
	Sparse bool   `json:"sparse" yaml:"sparse"`
	Block  uint64 `json:"block" yaml:"block"`
}

// Copy returns a deep copy of the pool, including its ticks.
func (p Pool) Copy() Pool {
	newPool := p
	if p.Liquidity != nil {
		newPool.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	if p.SqrtPriceX96 != nil {
		newPool.SqrtPriceX96 = new(big.Int).Set(p.SqrtPriceX96)
	}
	if p.Ticks != nil {
		newPool.Ticks = make([]TickInfo, len(p.Ticks))
		for i, t := range p.Ticks {
			newPool.Ticks[i] = TickInfo{Index: t.Index}
			if t.LiquidityGross != nil {
				newPool.Ticks[i].LiquidityGross = new(big.Int).Set(t.LiquidityGross)
			}
			if t.LiquidityNet != nil {
				newPool.Ticks[i].LiquidityNet = new(big.Int).Set(t.LiquidityNet)
			}
		}
	}
	return newPool
}

// HasToken reports whether token is one of the pool's two tokens.
func (p Pool) HasToken(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// SimulationResult describes a hypothetical swap against a pool snapshot.
// Deltas are from the pool's perspective: positive means the pool receives.
type SimulationResult struct {
	Amount0Delta *big.Int `json:"amount0Delta"`
	Amount1Delta *big.Int `json:"amount1Delta"`
	CurrentState Pool     `json:"currentState"`
	FutureState  Pool     `json:"futureState"`
}
