package arbitrage

import (
	"fmt"

	"github.com/defistate/defistate-arbitrage-go/pools"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	uniswapv3 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Override substitutes State for a pool's live state during one calculation.
// State is the pool's snapshot type or its SimulationResult, as a value or a
// pointer; a simulation result contributes its FutureState.
type Override struct {
	Pool  pools.Pool
	State any
}

// OverrideSet is a resolved set of overrides keyed by pool address. A nil
// *OverrideSet is empty.
type OverrideSet struct {
	uniswapV2 map[common.Address]uniswapv2.Pool
	uniswapV3 map[common.Address]uniswapv3.Pool
	curve     map[common.Address]curvestableswap.Pool
}

func newOverrideSet() *OverrideSet {
	return &OverrideSet{
		uniswapV2: make(map[common.Address]uniswapv2.Pool),
		uniswapV3: make(map[common.Address]uniswapv3.Pool),
		curve:     make(map[common.Address]curvestableswap.Pool),
	}
}

// ResolveOverrides validates overrides and indexes them by pool address. A
// later override for the same pool replaces an earlier one.
func ResolveOverrides(overrides []Override) (*OverrideSet, error) {
	set := newOverrideSet()
	for i, o := range overrides {
		if o.Pool == nil {
			return nil, fmt.Errorf("%w: override %d has no pool", ErrUnsupportedOverride, i)
		}
		addr := o.Pool.Address()

		var stateAddr common.Address
		switch pool := o.Pool.(type) {
		case *pools.UniswapV2:
			state, ok := extractState(o.State, func(r uniswapv2.SimulationResult) uniswapv2.Pool { return r.FutureState })
			if !ok {
				return nil, unsupported(i, pool, o.State)
			}
			stateAddr = state.Address
			set.uniswapV2[addr] = state.Copy()
		case *pools.UniswapV3:
			state, ok := extractState(o.State, func(r uniswapv3.SimulationResult) uniswapv3.Pool { return r.FutureState })
			if !ok {
				return nil, unsupported(i, pool, o.State)
			}
			stateAddr = state.Address
			set.uniswapV3[addr] = state.Copy()
		case *pools.CurveStableswap:
			state, ok := extractState(o.State, func(r curvestableswap.SimulationResult) curvestableswap.Pool { return r.FutureState })
			if !ok {
				return nil, unsupported(i, pool, o.State)
			}
			stateAddr = state.Address
			set.curve[addr] = state.Copy()
		default:
			return nil, fmt.Errorf("%w: override %d targets %T", ErrUnsupportedOverride, i, o.Pool)
		}

		if stateAddr != addr {
			return nil, fmt.Errorf("%w: override %d describes %s, not pool %s", ErrUnsupportedOverride, i, stateAddr.Hex(), addr.Hex())
		}
	}
	return set, nil
}

// extractState accepts S, *S, R or *R and returns the snapshot it carries.
func extractState[S, R any](v any, future func(R) S) (S, bool) {
	var zero S
	switch s := v.(type) {
	case S:
		return s, true
	case *S:
		if s != nil {
			return *s, true
		}
	case R:
		return future(s), true
	case *R:
		if s != nil {
			return future(*s), true
		}
	}
	return zero, false
}

func unsupported(i int, pool pools.Pool, state any) error {
	return fmt.Errorf("%w: override %d for %s pool %s has type %T", ErrUnsupportedOverride, i, pool.Kind(), pool.Address().Hex(), state)
}

// Len returns the number of overridden pools.
func (s *OverrideSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.uniswapV2) + len(s.uniswapV3) + len(s.curve)
}

// UniswapV2 returns the override for addr, or nil.
func (s *OverrideSet) UniswapV2(addr common.Address) *uniswapv2.Pool {
	if s == nil {
		return nil
	}
	if state, ok := s.uniswapV2[addr]; ok {
		return &state
	}
	return nil
}

// UniswapV3 returns the override for addr, or nil.
func (s *OverrideSet) UniswapV3(addr common.Address) *uniswapv3.Pool {
	if s == nil {
		return nil
	}
	if state, ok := s.uniswapV3[addr]; ok {
		return &state
	}
	return nil
}

// Curve returns the override for addr, or nil.
func (s *OverrideSet) Curve(addr common.Address) *curvestableswap.Pool {
	if s == nil {
		return nil
	}
	if state, ok := s.curve[addr]; ok {
		return &state
	}
	return nil
}

// Addresses lists the overridden pools, for logging.
func (s *OverrideSet) Addresses() []common.Address {
	if s == nil {
		return nil
	}
	out := make([]common.Address, 0, s.Len())
	for addr := range s.uniswapV2 {
		out = append(out, addr)
	}
	for addr := range s.uniswapV3 {
		out = append(out, addr)
	}
	for addr := range s.curve {
		out = append(out, addr)
	}
	return out
}
