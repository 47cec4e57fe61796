package arbitrage

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"slices"
)

const (
	// DefaultMaxIterations caps objective evaluations per optimization.
	DefaultMaxIterations = 500
	// xatol is the absolute tolerance on the input amount, one base unit.
	xatol = 1.0
)

var (
	sqrtEps    = math.Sqrt(2.2e-16)
	goldenMean = 0.5 * (3.0 - math.Sqrt(5.0))

	// bracketFractions seed the search at 45%, 50% and 55% of the upper bound.
	bracketFractions = [3]float64{0.45, 0.50, 0.55}
)

// brent is a bounded scalar minimizer: golden section search with parabolic
// interpolation steps. It does not assume f is smooth or continuous and
// returns a local minimum.
type brent struct {
	xatol  float64
	maxfun int
}

type point struct {
	x, fx float64
}

// minimize searches [a, b] for a minimum of f. The seeds are evaluated
// first and the best of them starts the search; there must be at least three.
// It returns the best point found and the number of evaluations of f.
//
// Sums of products are wrapped in float64() so the compiler never fuses
// them; results are then identical on every architecture.
func (o brent) minimize(f func(float64) float64, a, b float64, seeds []float64) (x, fx float64, evals int) {
	pts := make([]point, 0, len(seeds))
	for _, s := range seeds {
		pts = append(pts, point{x: s, fx: f(s)})
	}
	evals = len(pts)
	slices.SortFunc(pts, func(p, q point) int {
		if c := cmp.Compare(p.fx, q.fx); c != 0 {
			return c
		}
		return cmp.Compare(p.x, q.x)
	})

	// xf is the best point so far, nfc the second best and fulc the third.
	xf, fx := pts[0].x, pts[0].fx
	nfc, fnfc := pts[1].x, pts[1].fx
	fulc, ffulc := pts[2].x, pts[2].fx

	var rat, e float64
	xm := 0.5 * (a + b)
	tol1 := float64(sqrtEps*math.Abs(xf)) + o.xatol/3.0
	tol2 := 2.0 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true
		if math.Abs(e) > tol1 {
			// parabola through the three best points
			golden = false
			r := float64((xf - nfc) * (fx - ffulc))
			q := float64((xf - fulc) * (fx - fnfc))
			p := float64((xf-fulc)*q) - float64((xf-nfc)*r)
			q = 2.0 * (q - r)
			if q > 0.0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x = xf + rat
				if (x-a) < tol2 || (b-x) < tol2 {
					rat = tol1 * sign(xm-xf)
				}
			} else {
				golden = true
			}
		}

		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x = xf + sign(rat)*math.Max(math.Abs(rat), tol1)
		fu := f(x)
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = float64(sqrtEps*math.Abs(xf)) + o.xatol/3.0
		tol2 = 2.0 * tol1

		if evals >= o.maxfun {
			break
		}
	}
	return xf, fx, evals
}

// sign is -1 for negative v and 1 otherwise.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// optimize maximizes out(x) - x over integer inputs in [1, maxInput]. A
// probe that fails scores as if the cycle returned nothing. The returned
// profit is recomputed exactly at the floored optimum.
func (c *Cycle) optimize(overrides *OverrideSet) (bestInput, bestProfit *big.Int, err error) {
	upper, _ := new(big.Float).SetInt(c.maxInput).Float64()

	probeFailures := 0
	objective := func(x float64) float64 {
		amountIn := floorAmount(x)
		out, err := c.Evaluate(amountIn, overrides)
		if err != nil {
			probeFailures++
			out = new(big.Int)
		}
		profit, _ := new(big.Float).SetInt(new(big.Int).Sub(out, amountIn)).Float64()
		return -profit
	}

	seeds := make([]float64, len(bracketFractions))
	for i, fraction := range bracketFractions {
		seeds[i] = fraction * upper
	}

	opt := brent{xatol: xatol, maxfun: c.maxIterations}
	x, _, evals := opt.minimize(objective, 1.0, upper, seeds)

	c.metrics.OptimizerEvaluations.Observe(float64(evals))
	if probeFailures > 0 {
		c.metrics.ProbeFailuresTotal.WithLabelValues(c.id).Add(float64(probeFailures))
	}

	bestInput = floorAmount(x)
	out, err := c.Evaluate(bestInput, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: optimum %s does not evaluate: %w", ErrNoArbitrage, bestInput, err)
	}
	bestProfit = new(big.Int).Sub(out, bestInput)
	c.logger.Debug("optimizer finished",
		"cycle", c.id,
		"input", bestInput,
		"profit", bestProfit,
		"evaluations", evals,
		"probe_failures", probeFailures,
	)
	if bestProfit.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: best profit %s at input %s", ErrNoArbitrage, bestProfit, bestInput)
	}
	return bestInput, bestProfit, nil
}

// floorAmount truncates x to an integer amount, at least 1.
func floorAmount(x float64) *big.Int {
	if x < 1 || math.IsNaN(x) {
		return big.NewInt(1)
	}
	n, _ := new(big.Float).SetFloat64(x).Int(nil)
	return n
}
