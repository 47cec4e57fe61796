package curvestableswap

import (
	"fmt"
	"math/big"
)

const maxIterations = 255

var (
	// APrecision is the A multiplier used by non-legacy templates.
	APrecision = big.NewInt(100)
	// Precision is the 1e18 fixed point used for rates and virtual prices.
	Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// FeeDenominator is 1e10; pool fees are expressed against it.
	FeeDenominator = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)

	one = big.NewInt(1)
)

// converged reports whether |a - b| <= 1.
func converged(a, b *big.Int) bool {
	d := new(big.Int).Sub(a, b)
	return d.CmpAbs(one) <= 0
}

// xpMem scales balances to a common 18 decimal basis: rate * balance / 1e18.
func xpMem(rates, balances []*big.Int) []*big.Int {
	xp := make([]*big.Int, len(balances))
	for i := range balances {
		xp[i] = new(big.Int).Mul(rates[i], balances[i])
		xp[i].Quo(xp[i], Precision)
	}
	return xp
}

// getD solves the StableSwap invariant for D by Newton's method.
// amp is the effective amplification: raw A for legacy pools, A*APrecision
// otherwise.
func getD(xp []*big.Int, amp *big.Int, legacy bool) (*big.Int, error) {
	n := big.NewInt(int64(len(xp)))
	s := new(big.Int)
	for _, x := range xp {
		s.Add(s, x)
	}
	if s.Sign() == 0 {
		return new(big.Int), nil
	}

	d := new(big.Int).Set(s)
	ann := new(big.Int).Mul(amp, n)
	nPlusOne := new(big.Int).Add(n, one)

	dP := new(big.Int)
	tmp := new(big.Int)
	num := new(big.Int)
	den := new(big.Int)
	for range maxIterations {
		dP.Set(d)
		for _, x := range xp {
			tmp.Mul(x, n)
			if tmp.Sign() == 0 {
				return nil, fmt.Errorf("%w: zero balance in invariant", ErrZeroLiquidity)
			}
			dP.Mul(dP, d)
			dP.Quo(dP, tmp)
		}
		prev := new(big.Int).Set(d)

		if legacy {
			// (Ann*S + D_P*N) * D / ((Ann-1)*D + (N+1)*D_P)
			num.Mul(ann, s)
			num.Add(num, tmp.Mul(dP, n))
			num.Mul(num, d)
			den.Sub(ann, one)
			den.Mul(den, d)
			den.Add(den, tmp.Mul(nPlusOne, dP))
		} else {
			// (Ann*S/A_P + D_P*N) * D / ((Ann-A_P)*D/A_P + (N+1)*D_P)
			num.Mul(ann, s)
			num.Quo(num, APrecision)
			num.Add(num, tmp.Mul(dP, n))
			num.Mul(num, d)
			den.Sub(ann, APrecision)
			den.Mul(den, d)
			den.Quo(den, APrecision)
			den.Add(den, tmp.Mul(nPlusOne, dP))
		}
		if den.Sign() == 0 {
			return nil, fmt.Errorf("%w: zero denominator in D iteration", ErrNoConvergence)
		}
		d.Quo(num, den)

		if converged(d, prev) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: D did not converge", ErrNoConvergence)
}

// solveY runs the Newton iteration y = (y*y + c) / (2*y + b - D) shared by
// getY and getYD.
func solveY(c, b, d *big.Int) (*big.Int, error) {
	y := new(big.Int).Set(d)
	num := new(big.Int)
	den := new(big.Int)
	for range maxIterations {
		prev := new(big.Int).Set(y)
		num.Mul(y, y)
		num.Add(num, c)
		den.Lsh(y, 1)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			return nil, fmt.Errorf("%w: non-positive denominator in y iteration", ErrNoConvergence)
		}
		y.Quo(num, den)
		if converged(y, prev) {
			return y, nil
		}
	}
	return nil, fmt.Errorf("%w: y did not converge", ErrNoConvergence)
}

// yCoefficients folds every balance except the excluded indices into c and S.
// The balance at index i, if i >= 0, is replaced by x.
func yCoefficients(xp []*big.Int, i, j int, x, d, amp *big.Int, legacy bool) (c, b *big.Int, err error) {
	n := big.NewInt(int64(len(xp)))
	ann := new(big.Int).Mul(amp, n)
	if ann.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: zero amplification", ErrInvalidState)
	}

	c = new(big.Int).Set(d)
	s := new(big.Int)
	tmp := new(big.Int)
	for k := range xp {
		var xk *big.Int
		switch {
		case k == i:
			xk = x
		case k != j:
			xk = xp[k]
		default:
			continue
		}
		if xk.Sign() <= 0 {
			return nil, nil, fmt.Errorf("%w: zero balance at coin %d", ErrZeroLiquidity, k)
		}
		s.Add(s, xk)
		c.Mul(c, d)
		c.Quo(c, tmp.Mul(xk, n))
	}

	c.Mul(c, d)
	b = new(big.Int).Set(d)
	if !legacy {
		c.Mul(c, APrecision)
		b.Mul(b, APrecision)
	}
	c.Quo(c, tmp.Mul(ann, n))
	b.Quo(b, ann)
	b.Add(b, s)
	return c, b, nil
}

// getY returns the balance of coin j that keeps the invariant when coin i's
// balance becomes x.
func getY(i, j int, x *big.Int, xp []*big.Int, amp *big.Int, legacy bool) (*big.Int, error) {
	if i == j {
		return nil, ErrSameCoin
	}
	if i < 0 || j < 0 || i >= len(xp) || j >= len(xp) {
		return nil, fmt.Errorf("%w: coin index out of range", ErrInvalidState)
	}

	d, err := getD(xp, amp, legacy)
	if err != nil {
		return nil, err
	}
	c, b, err := yCoefficients(xp, i, j, x, d, amp, legacy)
	if err != nil {
		return nil, err
	}
	return solveY(c, b, d)
}

// getYD returns the balance of coin i for which the invariant equals d with
// every other balance unchanged.
func getYD(amp *big.Int, i int, xp []*big.Int, d *big.Int, legacy bool) (*big.Int, error) {
	if i < 0 || i >= len(xp) {
		return nil, fmt.Errorf("%w: coin index out of range", ErrInvalidState)
	}
	c, b, err := yCoefficients(xp, -1, i, nil, d, amp, legacy)
	if err != nil {
		return nil, err
	}
	return solveY(c, b, d)
}
