package pools

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	uniswapv3 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// UniswapV3 is a live concentrated-liquidity pool.
type UniswapV3 struct {
	publisher

	address common.Address
	token0  common.Address
	token1  common.Address
	fee     uint64

	updateMu sync.Mutex
	state    atomic.Pointer[uniswapv3.Pool]
}

// NewUniswapV3 creates a handle seeded with state.
func NewUniswapV3(state uniswapv3.Pool) (*UniswapV3, error) {
	if state.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: uniswap v3 pool has no address", ErrInvalidPool)
	}
	if state.Token0 == state.Token1 {
		return nil, fmt.Errorf("%w: uniswap v3 pool %s has identical tokens", ErrInvalidPool, state.Address.Hex())
	}
	p := &UniswapV3{address: state.Address, token0: state.Token0, token1: state.Token1, fee: state.Fee}
	s := state.Copy()
	p.state.Store(&s)
	return p, nil
}

func (p *UniswapV3) Address() common.Address  { return p.address }
func (p *UniswapV3) Tokens() []common.Address { return []common.Address{p.token0, p.token1} }
func (p *UniswapV3) Kind() Kind               { return KindUniswapV3 }
func (p *UniswapV3) sealed()                  {}

func (p *UniswapV3) Token0() common.Address { return p.token0 }
func (p *UniswapV3) Token1() common.Address { return p.token1 }

// State returns a deep copy of the current snapshot.
func (p *UniswapV3) State() uniswapv3.Pool {
	return p.state.Load().Copy()
}

// Sparse reports whether the live snapshot holds only part of the tick range.
func (p *UniswapV3) Sparse() bool {
	return p.state.Load().Sparse
}

// Update replaces the snapshot and notifies subscribers if price, liquidity
// or ticks moved.
func (p *UniswapV3) Update(state uniswapv3.Pool) (bool, error) {
	if state.Address != p.address || state.Token0 != p.token0 || state.Token1 != p.token1 || state.Fee != p.fee {
		return false, fmt.Errorf("%w: uniswap v3 pool %s", ErrIdentityMismatch, p.address.Hex())
	}

	p.updateMu.Lock()
	old := p.state.Load()
	if !uniswapv3.Changed(*old, state) {
		p.updateMu.Unlock()
		return false, nil
	}
	s := state.Copy()
	p.state.Store(&s)
	p.updateMu.Unlock()

	p.notify(p)
	return true, nil
}

func (p *UniswapV3) snapshot(override *uniswapv3.Pool) uniswapv3.Pool {
	if override != nil {
		return *override
	}
	return *p.state.Load()
}

// Quote prices an exact-input swap of tokenIn with no price limit.
func (p *UniswapV3) Quote(tokenIn common.Address, amountIn *big.Int, override *uniswapv3.Pool) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return uniswapv3calculator.GetAmountOut(amountIn, nil, tokenIn, p.snapshot(override))
}

// Simulate returns the swap result and the state it would leave behind.
func (p *UniswapV3) Simulate(tokenIn common.Address, amountIn *big.Int, override *uniswapv3.Pool) (uniswapv3.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return uniswapv3.SimulationResult{}, ErrInvalidAmount
	}
	return uniswapv3calculator.SimulateExactInSwap(amountIn, nil, tokenIn, p.snapshot(override))
}

// SpotPrice returns the fee-adjusted marginal rate of tokenIn in raw units.
func (p *UniswapV3) SpotPrice(tokenIn common.Address, override *uniswapv3.Pool) (*big.Float, error) {
	return uniswapv3calculator.GetSpotPrice(tokenIn, p.snapshot(override))
}
