package algo

import (
	"fmt"
	"math"

	"github.com/huangsam/visqa/schema"
)

var (
	sqrtEps    = math.Sqrt(2.220446049250313e-16)
	goldenMean = 0.5 * (3 - math.Sqrt(5))
)

// minimizeBounded finds a local minimum of f on [lo, hi] with Brent's method
// (golden section plus parabolic interpolation). It stops when the bracket is
// within xtol of the current best point, and fails with ErrFitConvergence after
// maxIter function evaluations.
func minimizeBounded(f func(float64) float64, lo, hi, xtol float64, maxIter int) (xmin, fmin float64, err error) {
	if lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0, fmt.Errorf("%w: bounds [%g, %g]", schema.ErrInvalidConfiguration, lo, hi)
	}
	a, b := lo, hi
	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64
	fx := f(xf)
	evals := 1
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xtol/3
	tol2 := 2 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true
		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x := xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * signOrOne(xm-xf)
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

		x := xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
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
		tol1 = sqrtEps*math.Abs(xf) + xtol/3
		tol2 = 2 * tol1
		if evals >= maxIter {
			return xf, fx, fmt.Errorf("bounded search stopped after %d evaluations: %w", evals, schema.ErrFitConvergence)
		}
	}
	return xf, fx, nil
}

// signOrOne is sign(v) with sign(0) = 1.
func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
