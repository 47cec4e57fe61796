package curvestableswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CurveStableswapDiff holds the pools added, updated and removed between two
// sets of snapshots.
type CurveStableswapDiff struct {
	Additions []Pool
	Updates   []Pool
	Deletions []common.Address
}

// IsEmpty reports whether the diff carries no changes.
func (d CurveStableswapDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Changed reports whether any priced field differs between two snapshots of
// the same pool. Block and timestamp alone do not count as a change.
func Changed(old, new Pool) bool {
	if len(old.Balances) != len(new.Balances) || len(old.Rates) != len(new.Rates) {
		return true
	}
	for i := range old.Balances {
		if intChanged(old.Balances[i], new.Balances[i]) {
			return true
		}
	}
	for i := range old.Rates {
		if intChanged(old.Rates[i], new.Rates[i]) {
			return true
		}
	}
	if intChanged(old.A, new.A) || intChanged(old.Fee, new.Fee) || intChanged(old.AdminFee, new.AdminFee) ||
		intChanged(old.LPTotalSupply, new.LPTotalSupply) || intChanged(old.BaseVirtualPrice, new.BaseVirtualPrice) {
		return true
	}
	if (old.Ramp == nil) != (new.Ramp == nil) {
		return true
	}
	if old.Ramp != nil && (intChanged(old.Ramp.InitialA, new.Ramp.InitialA) || intChanged(old.Ramp.FutureA, new.Ramp.FutureA) ||
		old.Ramp.InitialTime != new.Ramp.InitialTime || old.Ramp.FutureTime != new.Ramp.FutureTime) {
		return true
	}
	if (old.Base == nil) != (new.Base == nil) {
		return true
	}
	return old.Base != nil && Changed(*old.Base, *new.Base)
}

func intChanged(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.Cmp(b) != 0
}

// Differ compares two sets of pool snapshots keyed by address.
func Differ(old, new []Pool) CurveStableswapDiff {
	var diff CurveStableswapDiff

	oldMap := make(map[common.Address]Pool, len(old))
	for _, p := range old {
		oldMap[p.Address] = p
	}

	for _, newPool := range new {
		oldPool, exists := oldMap[newPool.Address]
		if !exists {
			diff.Additions = append(diff.Additions, newPool)
		} else if Changed(oldPool, newPool) {
			diff.Updates = append(diff.Updates, newPool)
		}
		delete(oldMap, newPool.Address)
	}

	for addr := range oldMap {
		diff.Deletions = append(diff.Deletions, addr)
	}

	return diff
}
