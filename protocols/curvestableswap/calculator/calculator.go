package curvestableswap

import (
	"errors"
	"fmt"
	"math/big"

	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrTokenMismatch = errors.New("token mismatch")
	ErrSameCoin      = errors.New("same coin")
	// ErrZeroLiquidity is returned when a balance the exchange depends on is zero.
	ErrZeroLiquidity = errors.New("zero liquidity")
	// ErrNoConvergence is returned when an invariant solver exhausts its iterations.
	ErrNoConvergence = errors.New("invariant solver did not converge")
	ErrInvalidState  = errors.New("invalid pool state")
	// ErrUnknownSupply is returned by LP-token math when the pool's total supply is missing.
	ErrUnknownSupply = errors.New("lp total supply unknown")
	// ErrUnderlyingSimulation is returned when a state transition is requested
	// for an exchange routed through a base pool.
	ErrUnderlyingSimulation = errors.New("underlying exchanges cannot be simulated")
)

var ten = big.NewInt(10)

// Route resolves the coin indices for an exchange of tokenIn for tokenOut.
// Underlying is true when the exchange must go through exchange_underlying, in
// which case the indices refer to UnderlyingCoins.
func Route(pool curvestableswap.Pool, tokenIn, tokenOut common.Address) (i, j int, underlying bool, err error) {
	if tokenIn == tokenOut {
		return 0, 0, false, fmt.Errorf("%w: %s", ErrSameCoin, tokenIn.Hex())
	}

	ci, inDirect := pool.CoinIndex(tokenIn)
	cj, outDirect := pool.CoinIndex(tokenOut)
	if inDirect && outDirect {
		return ci, cj, false, nil
	}

	if pool.IsMetapool() {
		ui, inUnderlying := pool.UnderlyingIndex(tokenIn)
		uj, outUnderlying := pool.UnderlyingIndex(tokenOut)
		if inUnderlying && outUnderlying {
			return ui, uj, true, nil
		}
	}
	return 0, 0, false, fmt.Errorf("%w: pool %s has no route %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

// GetAmountOut calculates the output of exchanging amountIn of tokenIn for
// tokenOut, routing through the base pool when needed.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool curvestableswap.Pool) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	i, j, underlying, err := Route(pool, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if err := checkBalances(pool); err != nil {
		return nil, err
	}
	if !underlying {
		return GetDy(pool, i, j, amountIn)
	}
	if err := checkBalances(*pool.Base); err != nil {
		return nil, err
	}
	return GetDyUnderlying(pool, i, j, amountIn)
}

// SimulateSwap calculates a direct exchange and the balances it would leave
// behind, including the admin fee taken out of the output coin.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool curvestableswap.Pool) (curvestableswap.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return curvestableswap.SimulationResult{}, ErrInvalidAmount
	}
	i, j, underlying, err := Route(pool, tokenIn, tokenOut)
	if err != nil {
		return curvestableswap.SimulationResult{}, err
	}
	if underlying {
		return curvestableswap.SimulationResult{}, fmt.Errorf("%w: pool %s", ErrUnderlyingSimulation, pool.Address.Hex())
	}
	if err := checkBalances(pool); err != nil {
		return curvestableswap.SimulationResult{}, err
	}

	rates, err := Rates(pool)
	if err != nil {
		return curvestableswap.SimulationResult{}, err
	}
	dy, dyFee, err := getDy(pool, rates, i, j, amountIn)
	if err != nil {
		return curvestableswap.SimulationResult{}, err
	}

	adminFee := new(big.Int)
	if pool.AdminFee != nil {
		adminFee.Mul(dyFee, pool.AdminFee)
		adminFee.Quo(adminFee, FeeDenominator)
		adminFee.Mul(adminFee, Precision)
		adminFee.Quo(adminFee, rates[j])
	}

	future := pool.Copy()
	future.Balances[i].Add(future.Balances[i], amountIn)
	future.Balances[j].Sub(future.Balances[j], dy)
	future.Balances[j].Sub(future.Balances[j], adminFee)

	return curvestableswap.SimulationResult{
		CoinIn:         i,
		CoinOut:        j,
		AmountInDelta:  new(big.Int).Set(amountIn),
		AmountOutDelta: new(big.Int).Neg(dy),
		CurrentState:   pool.Copy(),
		FutureState:    future,
	}, nil
}

// GetDy is the pool's get_dy(i, j, dx) for coins held directly.
func GetDy(pool curvestableswap.Pool, i, j int, dx *big.Int) (*big.Int, error) {
	rates, err := Rates(pool)
	if err != nil {
		return nil, err
	}
	dy, _, err := getDy(pool, rates, i, j, dx)
	return dy, err
}

// getDy returns the output in coin j units and the fee in xp units.
func getDy(pool curvestableswap.Pool, rates []*big.Int, i, j int, dx *big.Int) (dy, fee *big.Int, err error) {
	if i < 0 || j < 0 || i >= len(pool.Balances) || j >= len(pool.Balances) {
		return nil, nil, fmt.Errorf("%w: coin index out of range", ErrInvalidState)
	}
	xp := xpMem(rates, pool.Balances)

	x := new(big.Int).Mul(dx, rates[i])
	x.Quo(x, Precision)
	x.Add(x, xp[i])

	y, err := getY(i, j, x, xp, EffectiveA(pool), pool.Legacy)
	if err != nil {
		return nil, nil, err
	}

	dy = new(big.Int).Sub(xp[j], y)
	dy.Sub(dy, one)
	if dy.Sign() <= 0 {
		return new(big.Int), new(big.Int), nil
	}
	fee = new(big.Int).Mul(pool.Fee, dy)
	fee.Quo(fee, FeeDenominator)

	dy.Sub(dy, fee)
	dy.Mul(dy, Precision)
	dy.Quo(dy, rates[j])
	return dy, fee, nil
}

// GetDyUnderlying is the metapool's get_dy_underlying(i, j, dx). Indices refer
// to the pool's underlying coins.
func GetDyUnderlying(pool curvestableswap.Pool, i, j int, dx *big.Int) (*big.Int, error) {
	if !pool.IsMetapool() {
		return nil, fmt.Errorf("%w: pool %s is not a metapool", ErrInvalidState, pool.Address.Hex())
	}
	base := *pool.Base
	maxCoin := len(pool.Coins) - 1
	if i == j {
		return nil, ErrSameCoin
	}
	if i < 0 || j < 0 || i >= maxCoin+len(base.Coins) || j >= maxCoin+len(base.Coins) {
		return nil, fmt.Errorf("%w: underlying coin index out of range", ErrInvalidState)
	}

	baseI, baseJ := i-maxCoin, j-maxCoin
	metaI, metaJ := maxCoin, maxCoin
	if baseI < 0 {
		metaI = i
	}
	if baseJ < 0 {
		metaJ = j
	}
	if baseI >= 0 && baseJ >= 0 {
		return GetDy(base, baseI, baseJ, dx)
	}

	rates, err := Rates(pool)
	if err != nil {
		return nil, err
	}
	vp := rates[maxCoin]
	xp := xpMem(rates, pool.Balances)

	var x *big.Int
	if baseI < 0 {
		x = new(big.Int).Mul(dx, rates[i])
		x.Quo(x, Precision)
		x.Add(x, xp[i])
	} else {
		amounts := make([]*big.Int, len(base.Coins))
		for k := range amounts {
			amounts[k] = new(big.Int)
		}
		amounts[baseI].Set(dx)
		lp, err := CalcTokenAmount(base, amounts, true)
		if err != nil {
			return nil, err
		}
		x = lp.Mul(lp, vp)
		x.Quo(x, Precision)
		// deposit and withdraw fees, approximately
		depositFee := new(big.Int).Mul(x, base.Fee)
		depositFee.Quo(depositFee, new(big.Int).Lsh(FeeDenominator, 1))
		x.Sub(x, depositFee)
		x.Add(x, xp[maxCoin])
	}

	y, err := getY(metaI, metaJ, x, xp, EffectiveA(pool), pool.Legacy)
	if err != nil {
		return nil, err
	}
	dy := new(big.Int).Sub(xp[metaJ], y)
	dy.Sub(dy, one)
	if dy.Sign() <= 0 {
		return new(big.Int), nil
	}
	fee := new(big.Int).Mul(pool.Fee, dy)
	fee.Quo(fee, FeeDenominator)
	dy.Sub(dy, fee)

	if baseJ < 0 {
		dy.Mul(dy, Precision)
		return dy.Quo(dy, rates[metaJ]), nil
	}
	lpAmount := dy.Mul(dy, Precision)
	lpAmount.Quo(lpAmount, vp)
	return CalcWithdrawOneCoin(base, lpAmount, baseJ)
}

// CalcTokenAmount estimates the LP tokens minted (deposit) or burned
// (withdrawal) for the given per-coin amounts, ignoring fees.
func CalcTokenAmount(pool curvestableswap.Pool, amounts []*big.Int, deposit bool) (*big.Int, error) {
	if len(amounts) != len(pool.Balances) {
		return nil, fmt.Errorf("%w: %d amounts for %d coins", ErrInvalidState, len(amounts), len(pool.Balances))
	}
	if pool.LPTotalSupply == nil || pool.LPTotalSupply.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s", ErrUnknownSupply, pool.Address.Hex())
	}
	rates, err := Rates(pool)
	if err != nil {
		return nil, err
	}
	amp := EffectiveA(pool)

	d0, err := getD(xpMem(rates, pool.Balances), amp, pool.Legacy)
	if err != nil {
		return nil, err
	}
	if d0.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s is empty", ErrZeroLiquidity, pool.Address.Hex())
	}

	balances := make([]*big.Int, len(pool.Balances))
	for k, b := range pool.Balances {
		balances[k] = new(big.Int).Set(b)
		if deposit {
			balances[k].Add(balances[k], amounts[k])
		} else {
			balances[k].Sub(balances[k], amounts[k])
		}
	}
	d1, err := getD(xpMem(rates, balances), amp, pool.Legacy)
	if err != nil {
		return nil, err
	}

	diff := new(big.Int)
	if deposit {
		diff.Sub(d1, d0)
	} else {
		diff.Sub(d0, d1)
	}
	diff.Mul(diff, pool.LPTotalSupply)
	return diff.Quo(diff, d0), nil
}

// CalcWithdrawOneCoin returns the amount of coin i received for burning
// tokenAmount LP tokens, net of the imbalance fee.
func CalcWithdrawOneCoin(pool curvestableswap.Pool, tokenAmount *big.Int, i int) (*big.Int, error) {
	n := len(pool.Balances)
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: coin index out of range", ErrInvalidState)
	}
	if pool.LPTotalSupply == nil || pool.LPTotalSupply.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s", ErrUnknownSupply, pool.Address.Hex())
	}
	rates, err := Rates(pool)
	if err != nil {
		return nil, err
	}
	amp := EffectiveA(pool)
	xp := xpMem(rates, pool.Balances)

	d0, err := getD(xp, amp, pool.Legacy)
	if err != nil {
		return nil, err
	}
	if d0.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s is empty", ErrZeroLiquidity, pool.Address.Hex())
	}
	d1 := new(big.Int).Mul(tokenAmount, d0)
	d1.Quo(d1, pool.LPTotalSupply)
	d1.Sub(d0, d1)

	newY, err := getYD(amp, i, xp, d1, pool.Legacy)
	if err != nil {
		return nil, err
	}

	// fee * N / (4 * (N - 1))
	fee := new(big.Int).Mul(pool.Fee, big.NewInt(int64(n)))
	fee.Quo(fee, big.NewInt(int64(4*(n-1))))

	xpReduced := make([]*big.Int, n)
	for k := range xp {
		expected := new(big.Int).Mul(xp[k], d1)
		expected.Quo(expected, d0)
		if k == i {
			expected.Sub(expected, newY)
		} else {
			expected.Sub(xp[k], expected)
		}
		expected.Mul(expected, fee)
		expected.Quo(expected, FeeDenominator)
		xpReduced[k] = new(big.Int).Sub(xp[k], expected)
	}

	y, err := getYD(amp, i, xpReduced, d1, pool.Legacy)
	if err != nil {
		return nil, err
	}
	dy := new(big.Int).Sub(xpReduced[i], y)
	dy.Sub(dy, one)
	if dy.Sign() <= 0 {
		return new(big.Int), nil
	}
	dy.Mul(dy, Precision)
	return dy.Quo(dy, rates[i]), nil
}

// VirtualPrice is D * 1e18 / LP supply, the value of one LP token in the
// pool's 18 decimal basis.
func VirtualPrice(pool curvestableswap.Pool) (*big.Int, error) {
	if pool.LPTotalSupply == nil || pool.LPTotalSupply.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s", ErrUnknownSupply, pool.Address.Hex())
	}
	rates, err := Rates(pool)
	if err != nil {
		return nil, err
	}
	d, err := getD(xpMem(rates, pool.Balances), EffectiveA(pool), pool.Legacy)
	if err != nil {
		return nil, err
	}
	d.Mul(d, Precision)
	return d.Quo(d, pool.LPTotalSupply), nil
}

// Rates returns the per-coin rate multipliers. Without explicit rates each coin
// gets 10^(36 - decimals). A metapool's LP coin is priced at the base pool's
// virtual price.
func Rates(pool curvestableswap.Pool) ([]*big.Int, error) {
	n := len(pool.Coins)
	if n < 2 || len(pool.Balances) != n {
		return nil, fmt.Errorf("%w: pool %s has %d coins and %d balances", ErrInvalidState, pool.Address.Hex(), n, len(pool.Balances))
	}
	if (pool.A == nil && pool.Ramp == nil) || pool.Fee == nil {
		return nil, fmt.Errorf("%w: pool %s is missing A or fee", ErrInvalidState, pool.Address.Hex())
	}

	rates := make([]*big.Int, n)
	switch {
	case len(pool.Rates) == n:
		for k, r := range pool.Rates {
			if r == nil || r.Sign() <= 0 {
				return nil, fmt.Errorf("%w: rate %d is not positive", ErrInvalidState, k)
			}
			rates[k] = new(big.Int).Set(r)
		}
	case len(pool.Decimals) == n:
		for k, dec := range pool.Decimals {
			if dec > 36 {
				return nil, fmt.Errorf("%w: coin %d has %d decimals", ErrInvalidState, k, dec)
			}
			rates[k] = new(big.Int).Exp(ten, big.NewInt(int64(36-int(dec))), nil)
		}
	default:
		return nil, fmt.Errorf("%w: pool %s needs rates or decimals for every coin", ErrInvalidState, pool.Address.Hex())
	}

	if pool.IsMetapool() {
		vp, err := BaseVirtualPrice(pool)
		if err != nil {
			return nil, err
		}
		rates[n-1] = vp
	}
	return rates, nil
}

// BaseVirtualPrice returns the cached base virtual price if the snapshot has
// one, otherwise it is derived from the base pool.
func BaseVirtualPrice(pool curvestableswap.Pool) (*big.Int, error) {
	if pool.BaseVirtualPrice != nil && pool.BaseVirtualPrice.Sign() > 0 {
		return new(big.Int).Set(pool.BaseVirtualPrice), nil
	}
	if pool.Base == nil {
		return nil, fmt.Errorf("%w: pool %s has no base pool", ErrInvalidState, pool.Address.Hex())
	}
	return VirtualPrice(*pool.Base)
}

// EffectiveA returns the amplification in the units the invariant math uses:
// the ramp value at the snapshot's timestamp when ramping, otherwise A (legacy)
// or A * APrecision.
func EffectiveA(pool curvestableswap.Pool) *big.Int {
	r := pool.Ramp
	if r == nil || r.InitialA == nil || r.FutureA == nil {
		if pool.A == nil {
			return new(big.Int)
		}
		if pool.Legacy {
			return new(big.Int).Set(pool.A)
		}
		return new(big.Int).Mul(pool.A, APrecision)
	}

	t := pool.Timestamp
	if t >= r.FutureTime || r.FutureTime <= r.InitialTime {
		return new(big.Int).Set(r.FutureA)
	}
	if t < r.InitialTime {
		t = r.InitialTime
	}

	elapsed := new(big.Int).SetUint64(t - r.InitialTime)
	span := new(big.Int).SetUint64(r.FutureTime - r.InitialTime)
	delta := new(big.Int)
	if r.FutureA.Cmp(r.InitialA) > 0 {
		delta.Sub(r.FutureA, r.InitialA)
		delta.Mul(delta, elapsed)
		delta.Quo(delta, span)
		return delta.Add(r.InitialA, delta)
	}
	delta.Sub(r.InitialA, r.FutureA)
	delta.Mul(delta, elapsed)
	delta.Quo(delta, span)
	return delta.Sub(r.InitialA, delta)
}

func checkBalances(pool curvestableswap.Pool) error {
	for k, b := range pool.Balances {
		if b == nil || b.Sign() <= 0 {
			return fmt.Errorf("%w: pool %s coin %d has a zero balance", ErrZeroLiquidity, pool.Address.Hex(), k)
		}
	}
	return nil
}

// GetSpotPrice approximates the marginal rate of tokenIn in tokenOut by quoting
// a small input: balance/1e6 of the input coin, at least 1 unit. The quote is
// rounded up by one unit so the floor in get_dy never understates the rate.
func GetSpotPrice(tokenIn, tokenOut common.Address, pool curvestableswap.Pool) (*big.Float, error) {
	i, _, underlying, err := Route(pool, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	balances := pool.Balances
	if underlying {
		maxCoin := len(pool.Coins) - 1
		if i >= maxCoin {
			balances, i = pool.Base.Balances, i-maxCoin
		}
	}
	if i >= len(balances) || balances[i] == nil {
		return nil, fmt.Errorf("%w: coin index out of range", ErrInvalidState)
	}
	probe := new(big.Int).Quo(balances[i], big.NewInt(1_000_000))
	if probe.Sign() <= 0 {
		probe.SetInt64(1)
	}

	out, err := GetAmountOut(probe, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	out.Add(out, big.NewInt(1))
	return new(big.Float).Quo(new(big.Float).SetInt(out), new(big.Float).SetInt(probe)), nil
}
