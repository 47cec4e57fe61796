package curvestableswap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher applies diff to prevState and returns deep copies of the resulting
// pools. Order is kept and additions go last.
func Patcher(prevState []Pool, diff CurveStableswapDiff) ([]Pool, error) {
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
		return nil, fmt.Errorf("update for unknown pool %s", addr.Hex())
	}
	for _, p := range diff.Additions {
		if _, ok := known[p.Address]; ok {
			return nil, fmt.Errorf("addition of known pool %s", p.Address.Hex())
		}
		next = append(next, p.Copy())
	}
	return next, nil
}
