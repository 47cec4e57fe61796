package pools

import (
	"fmt"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"

	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	curvestableswapcalculator "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// CurveStableswap is a live Curve StableSwap pool, plain or meta.
type CurveStableswap struct {
	publisher

	address common.Address
	coins   []common.Address
	tokens  []common.Address

	updateMu sync.Mutex
	state    atomic.Pointer[curvestableswap.Pool]
}

// NewCurveStableswap creates a handle seeded with state.
func NewCurveStableswap(state curvestableswap.Pool) (*CurveStableswap, error) {
	if state.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: curve pool has no address", ErrInvalidPool)
	}
	if len(state.Coins) < 2 || len(state.Balances) != len(state.Coins) {
		return nil, fmt.Errorf("%w: curve pool %s has %d coins and %d balances", ErrInvalidPool, state.Address.Hex(), len(state.Coins), len(state.Balances))
	}
	switch state.CoinIndexType {
	case "":
		state.CoinIndexType = curvestableswap.CoinIndexInt128
	case curvestableswap.CoinIndexInt128, curvestableswap.CoinIndexUint256:
	default:
		return nil, fmt.Errorf("%w: curve pool %s has coin index type %q", ErrInvalidPool, state.Address.Hex(), state.CoinIndexType)
	}

	p := &CurveStableswap{
		address: state.Address,
		coins:   slices.Clone(state.Coins),
		tokens:  state.AllCoins(),
	}
	s := state.Copy()
	p.state.Store(&s)
	return p, nil
}

func (p *CurveStableswap) Address() common.Address { return p.address }

// Tokens returns the pool's coins followed by any underlying coins.
func (p *CurveStableswap) Tokens() []common.Address { return slices.Clone(p.tokens) }
func (p *CurveStableswap) Kind() Kind               { return KindCurveStableswap }
func (p *CurveStableswap) sealed()                  {}

// Coins returns the coins held directly by the pool.
func (p *CurveStableswap) Coins() []common.Address { return slices.Clone(p.coins) }

// State returns a deep copy of the current snapshot.
func (p *CurveStableswap) State() curvestableswap.Pool {
	return p.state.Load().Copy()
}

// Update replaces the snapshot and notifies subscribers if any priced field
// moved, including the base pool of a metapool.
func (p *CurveStableswap) Update(state curvestableswap.Pool) (bool, error) {
	if state.Address != p.address || !slices.Equal(state.Coins, p.coins) {
		return false, fmt.Errorf("%w: curve pool %s", ErrIdentityMismatch, p.address.Hex())
	}
	if state.CoinIndexType == "" {
		state.CoinIndexType = p.state.Load().CoinIndexType
	}

	p.updateMu.Lock()
	old := p.state.Load()
	if !curvestableswap.Changed(*old, state) {
		p.updateMu.Unlock()
		return false, nil
	}
	s := state.Copy()
	p.state.Store(&s)
	p.updateMu.Unlock()

	p.notify(p)
	return true, nil
}

func (p *CurveStableswap) snapshot(override *curvestableswap.Pool) curvestableswap.Pool {
	if override != nil {
		return *override
	}
	return *p.state.Load()
}

// Route resolves coin indices and whether the exchange goes through the base pool.
func (p *CurveStableswap) Route(tokenIn, tokenOut common.Address, override *curvestableswap.Pool) (i, j int, underlying bool, err error) {
	return curvestableswapcalculator.Route(p.snapshot(override), tokenIn, tokenOut)
}

// Quote prices an exchange of amountIn tokenIn for tokenOut.
func (p *CurveStableswap) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int, override *curvestableswap.Pool) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return curvestableswapcalculator.GetAmountOut(amountIn, tokenIn, tokenOut, p.snapshot(override))
}

// Simulate returns the exchange result and the balances it would leave behind.
func (p *CurveStableswap) Simulate(tokenIn, tokenOut common.Address, amountIn *big.Int, override *curvestableswap.Pool) (curvestableswap.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return curvestableswap.SimulationResult{}, ErrInvalidAmount
	}
	return curvestableswapcalculator.SimulateSwap(amountIn, tokenIn, tokenOut, p.snapshot(override))
}

// SpotPrice approximates the marginal rate of tokenIn in tokenOut.
func (p *CurveStableswap) SpotPrice(tokenIn, tokenOut common.Address, override *curvestableswap.Pool) (*big.Float, error) {
	return curvestableswapcalculator.GetSpotPrice(tokenIn, tokenOut, p.snapshot(override))
}
