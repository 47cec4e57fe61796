package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeeBps is the 0.3% swap fee charged by canonical Uniswap V2 pairs.
const DefaultFeeBps = 30

// Pool is an immutable snapshot of a Uniswap V2 pair. A new snapshot replaces
// the previous one on every update; snapshots are never mutated in place.
type Pool struct {
	Address  common.Address `json:"address" yaml:"address"`
	Token0   common.Address `json:"token0" yaml:"token0"`
	Token1   common.Address `json:"token1" yaml:"token1"`
	Reserve0 *big.Int       `json:"reserve0" yaml:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1" yaml:"reserve1"`
	FeeBps   uint16         `json:"feeBps" yaml:"feeBps"` // i.e 30 for 0.3%
	Block    uint64         `json:"block" yaml:"block"`
}

// Copy creates a new Pool with its own memory for pointer types like *big.Int.
func (p Pool) Copy() Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	return newPool
}

// HasToken reports whether token is one of the pair's two tokens.
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
