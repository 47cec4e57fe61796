package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type UniswapV2Diff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Changed reports whether the reserves of two snapshots of the same pair differ.
// Only the reserves are compared; they are the only fields a sync can move.
func Changed(old, new Pool) bool {
	return reserveChanged(old.Reserve0, new.Reserve0) || reserveChanged(old.Reserve1, new.Reserve1)
}

func reserveChanged(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.Cmp(b) != 0
}

// Differ calculates the difference between two sets of pair snapshots keyed by
// pool address.
// 1. Index both lists by address.
// 2. Walk the new set to find additions and updates.
// 3. Walk the old set to find deletions.
func Differ(old, new []Pool) UniswapV2Diff {
	oldPoolsMap := make(map[common.Address]Pool, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.Address] = pool
	}

	newPoolsMap := make(map[common.Address]Pool, len(new))
	for _, pool := range new {
		newPoolsMap[pool.Address] = pool
	}

	var additions []Pool
	var updates []Pool
	var deletions []common.Address

	for address, newPool := range newPoolsMap {
		oldPool, exists := oldPoolsMap[address]
		if !exists {
			additions = append(additions, newPool)
		} else if Changed(oldPool, newPool) {
			updates = append(updates, newPool)
		}
	}

	for address := range oldPoolsMap {
		if _, exists := newPoolsMap[address]; !exists {
			deletions = append(deletions, address)
		}
	}

	return UniswapV2Diff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
