package curvestableswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// CoinIndexInt128 and CoinIndexUint256 name the ABI type a pool uses for
	// coin indices in coins(), balances() and exchange().
	CoinIndexInt128  = "int128"
	CoinIndexUint256 = "uint256"
)

// ARamp describes a linear ramp of the amplification coefficient. Values are
// in the same units the pool's invariant math expects (see Pool.A).
type ARamp struct {
	InitialA    *big.Int `json:"initialA" yaml:"initialA"`
	FutureA     *big.Int `json:"futureA" yaml:"futureA"`
	InitialTime uint64   `json:"initialTime" yaml:"initialTime"`
	FutureTime  uint64   `json:"futureTime" yaml:"futureTime"`
}

// Pool is a snapshot of a Curve StableSwap pool.
//
// A is the amplification coefficient as returned by the pool's A() getter.
// Legacy pools (the 3pool generation) use it as is; newer templates scale it by
// A_PRECISION internally. When Ramp is set it takes precedence over A and is
// evaluated at Timestamp.
//
// A metapool pairs one coin with the LP token of Base. Its last coin is that LP
// token and its underlying coins are Coins[:len(Coins)-1] followed by Base.Coins.
type Pool struct {
	Address       common.Address   `json:"address" yaml:"address"`
	LPToken       common.Address   `json:"lpToken" yaml:"lpToken"`
	Coins         []common.Address `json:"coins" yaml:"coins"`
	Decimals      []uint8          `json:"decimals" yaml:"decimals"`
	Rates         []*big.Int       `json:"rates,omitempty" yaml:"rates,omitempty"`
	Balances      []*big.Int       `json:"balances" yaml:"balances"`
	A             *big.Int         `json:"a" yaml:"a"`
	Ramp          *ARamp           `json:"ramp,omitempty" yaml:"ramp,omitempty"`
	Fee           *big.Int         `json:"fee" yaml:"fee"`
	AdminFee      *big.Int         `json:"adminFee" yaml:"adminFee"`
	Legacy        bool             `json:"legacy" yaml:"legacy"`
	CoinIndexType string           `json:"coinIndexType" yaml:"coinIndexType"`
	LPTotalSupply *big.Int         `json:"lpTotalSupply" yaml:"lpTotalSupply"`

	Base             *Pool    `json:"base,omitempty" yaml:"base,omitempty"`
	BaseVirtualPrice *big.Int `json:"baseVirtualPrice,omitempty" yaml:"baseVirtualPrice,omitempty"`

	Timestamp uint64 `json:"timestamp" yaml:"timestamp"`
	Block     uint64 `json:"block" yaml:"block"`
}

// IsMetapool reports whether the pool trades against a base pool's LP token.
func (p Pool) IsMetapool() bool {
	return p.Base != nil
}

// CoinIndex returns the index of token in Coins.
func (p Pool) CoinIndex(token common.Address) (int, bool) {
	for i, c := range p.Coins {
		if c == token {
			return i, true
		}
	}
	return -1, false
}

// UnderlyingCoins returns the coins reachable through exchange_underlying, or
// nil for a plain pool.
func (p Pool) UnderlyingCoins() []common.Address {
	if p.Base == nil || len(p.Coins) == 0 {
		return nil
	}
	coins := make([]common.Address, 0, len(p.Coins)-1+len(p.Base.Coins))
	coins = append(coins, p.Coins[:len(p.Coins)-1]...)
	return append(coins, p.Base.Coins...)
}

// UnderlyingIndex returns the index of token in UnderlyingCoins.
func (p Pool) UnderlyingIndex(token common.Address) (int, bool) {
	for i, c := range p.UnderlyingCoins() {
		if c == token {
			return i, true
		}
	}
	return -1, false
}

// AllCoins returns the direct coins followed by any underlying coins not
// already present.
func (p Pool) AllCoins() []common.Address {
	all := append([]common.Address(nil), p.Coins...)
	for _, c := range p.UnderlyingCoins() {
		if _, ok := p.CoinIndex(c); !ok {
			all = append(all, c)
		}
	}
	return all
}

// HasToken reports whether token can be traded through the pool, directly or
// as an underlying coin.
func (p Pool) HasToken(token common.Address) bool {
	if _, ok := p.CoinIndex(token); ok {
		return true
	}
	_, ok := p.UnderlyingIndex(token)
	return ok
}

// Copy returns a deep copy of the pool, including its base pool.
func (p Pool) Copy() Pool {
	newPool := p
	newPool.Coins = append([]common.Address(nil), p.Coins...)
	newPool.Decimals = append([]uint8(nil), p.Decimals...)
	newPool.Rates = copyInts(p.Rates)
	newPool.Balances = copyInts(p.Balances)
	newPool.A = copyInt(p.A)
	newPool.Fee = copyInt(p.Fee)
	newPool.AdminFee = copyInt(p.AdminFee)
	newPool.LPTotalSupply = copyInt(p.LPTotalSupply)
	newPool.BaseVirtualPrice = copyInt(p.BaseVirtualPrice)
	if p.Ramp != nil {
		newPool.Ramp = &ARamp{
			InitialA:    copyInt(p.Ramp.InitialA),
			FutureA:     copyInt(p.Ramp.FutureA),
			InitialTime: p.Ramp.InitialTime,
			FutureTime:  p.Ramp.FutureTime,
		}
	}
	if p.Base != nil {
		base := p.Base.Copy()
		newPool.Base = &base
	}
	return newPool
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func copyInts(xs []*big.Int) []*big.Int {
	if xs == nil {
		return nil
	}
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = copyInt(x)
	}
	return out
}

// SimulationResult describes a hypothetical exchange against a pool snapshot.
// Deltas are for the traded coins from the pool's perspective: AmountInDelta is
// positive (the pool receives it), AmountOutDelta negative.
type SimulationResult struct {
	CoinIn         int      `json:"coinIn"`
	CoinOut        int      `json:"coinOut"`
	AmountInDelta  *big.Int `json:"amountInDelta"`
	AmountOutDelta *big.Int `json:"amountOutDelta"`
	CurrentState   Pool     `json:"currentState"`
	FutureState    Pool     `json:"futureState"`
}
