package uniswapv2

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher builds the next set of pair snapshots by applying diff to
// prevState. Surviving pairs keep their order and additions are appended.
// Every returned snapshot is a deep copy.
func Patcher(prevState []Pool, diff UniswapV2Diff) ([]Pool, error) {
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, addr := range diff.Deletions {
		deleted[addr] = struct{}{}
	}
	updates := make(map[common.Address]Pool, len(diff.Updates))
	for _, p := range diff.Updates {
		updates[p.Address] = p
	}

	known := make(map[common.Address]struct{}, len(prevState))
	next := make([]Pool, 0, len(prevState)+len(diff.Additions))
	for _, p := range prevState {
		known[p.Address] = struct{}{}
		if _, ok := deleted[p.Address]; ok {
			continue
		}
		if u, ok := updates[p.Address]; ok {
			p = u
			delete(updates, p.Address)
		}
		next = append(next, p.Copy())
	}

	for addr := range updates {
		return nil, fmt.Errorf("update for unknown pair %s", addr.Hex())
	}
	for _, p := range diff.Additions {
		if _, ok := known[p.Address]; ok {
			return nil, fmt.Errorf("addition of known pair %s", p.Address.Hex())
		}
		next = append(next, p.Copy())
	}
	return next, nil
}
