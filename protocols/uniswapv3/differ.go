package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Changed reports whether two snapshots of the same pool differ in any field a
// swap or a liquidity event can move. Ticks are compared in order since a
// Pool keeps them sorted.
func Changed(old, new Pool) bool {
	if old.Tick != new.Tick || old.Sparse != new.Sparse {
		return true
	}
	if bigChanged(old.SqrtPriceX96, new.SqrtPriceX96) || bigChanged(old.Liquidity, new.Liquidity) {
		return true
	}
	if len(old.Ticks) != len(new.Ticks) {
		return true
	}
	for i := range old.Ticks {
		if old.Ticks[i].Index != new.Ticks[i].Index {
			return true
		}
		if bigChanged(old.Ticks[i].LiquidityNet, new.Ticks[i].LiquidityNet) {
			return true
		}
	}
	return false
}

func bigChanged(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.Cmp(b) != 0
}

// UniswapV3Diff holds the pools added, updated and removed between two sets
// of snapshots.
type UniswapV3Diff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV3Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ compares two sets of pool snapshots keyed by address. Additions and
// updates follow the order of new.
func Differ(old, new []Pool) UniswapV3Diff {
	var diff UniswapV3Diff

	oldMap := make(map[common.Address]Pool, len(old))
	for _, p := range old {
		oldMap[p.Address] = p
	}
	for _, p := range new {
		prev, exists := oldMap[p.Address]
		if !exists {
			diff.Additions = append(diff.Additions, p)
		} else if Changed(prev, p) {
			diff.Updates = append(diff.Updates, p)
		}
		delete(oldMap, p.Address)
	}
	for _, p := range old {
		if _, gone := oldMap[p.Address]; gone {
			diff.Deletions = append(diff.Deletions, p.Address)
		}
	}
	return diff
}
