package pools

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	uniswapv2 "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// UniswapV2 is a live constant-product pair.
type UniswapV2 struct {
	publisher

	address common.Address
	token0  common.Address
	token1  common.Address

	updateMu sync.Mutex
	state    atomic.Pointer[uniswapv2.Pool]
}

// NewUniswapV2 creates a handle seeded with state.
func NewUniswapV2(state uniswapv2.Pool) (*UniswapV2, error) {
	if state.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: uniswap v2 pool has no address", ErrInvalidPool)
	}
	if state.Token0 == state.Token1 {
		return nil, fmt.Errorf("%w: uniswap v2 pool %s has identical tokens", ErrInvalidPool, state.Address.Hex())
	}
	p := &UniswapV2{address: state.Address, token0: state.Token0, token1: state.Token1}
	s := state.Copy()
	p.state.Store(&s)
	return p, nil
}

func (p *UniswapV2) Address() common.Address  { return p.address }
func (p *UniswapV2) Tokens() []common.Address { return []common.Address{p.token0, p.token1} }
func (p *UniswapV2) Kind() Kind               { return KindUniswapV2 }
func (p *UniswapV2) sealed()                  {}

// Token0 and Token1 follow the pair contract's ordering.
func (p *UniswapV2) Token0() common.Address { return p.token0 }
func (p *UniswapV2) Token1() common.Address { return p.token1 }

// State returns a deep copy of the current snapshot.
func (p *UniswapV2) State() uniswapv2.Pool {
	return p.state.Load().Copy()
}

// Update replaces the snapshot and notifies subscribers if any reserve moved.
func (p *UniswapV2) Update(state uniswapv2.Pool) (bool, error) {
	if state.Address != p.address || state.Token0 != p.token0 || state.Token1 != p.token1 {
		return false, fmt.Errorf("%w: uniswap v2 pool %s", ErrIdentityMismatch, p.address.Hex())
	}

	p.updateMu.Lock()
	old := p.state.Load()
	if !uniswapv2.Changed(*old, state) {
		p.updateMu.Unlock()
		return false, nil
	}
	s := state.Copy()
	p.state.Store(&s)
	p.updateMu.Unlock()

	p.notify(p)
	return true, nil
}

func (p *UniswapV2) snapshot(override *uniswapv2.Pool) uniswapv2.Pool {
	if override != nil {
		return *override
	}
	return *p.state.Load()
}

// Quote prices an exact-input swap of tokenIn. A non-nil override is used in
// place of the live state.
func (p *UniswapV2) Quote(tokenIn common.Address, amountIn *big.Int, override *uniswapv2.Pool) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	tokenOut, err := p.other(tokenIn)
	if err != nil {
		return nil, err
	}
	return uniswapv2calculator.GetAmountOut(amountIn, tokenIn, tokenOut, p.snapshot(override))
}

// Simulate returns the swap result and the state it would leave behind.
func (p *UniswapV2) Simulate(tokenIn common.Address, amountIn *big.Int, override *uniswapv2.Pool) (uniswapv2.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return uniswapv2.SimulationResult{}, ErrInvalidAmount
	}
	return uniswapv2calculator.SimulateSwap(amountIn, tokenIn, p.snapshot(override))
}

// SpotPrice returns the fee-adjusted marginal rate of tokenIn in raw units.
func (p *UniswapV2) SpotPrice(tokenIn common.Address, override *uniswapv2.Pool) (*big.Float, error) {
	return uniswapv2calculator.GetSpotPrice(tokenIn, p.snapshot(override))
}

func (p *UniswapV2) other(token common.Address) (common.Address, error) {
	switch token {
	case p.token0:
		return p.token1, nil
	case p.token1:
		return p.token0, nil
	}
	return common.Address{}, fmt.Errorf("%w: token %s is not in pool %s", uniswapv2calculator.ErrTokenMismatch, token.Hex(), p.address.Hex())
}
