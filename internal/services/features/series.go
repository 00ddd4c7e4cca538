package features

import (
	"fmt"
	"math"
)

// Columns are computed with NaN marking undefined values (rolling warm-up,
// missing predecessor). The extractor maps NaN and ±Inf to 0 once, at the end.

var nan = math.NaN()

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clean(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

func apply(a []float64, f func(x float64) float64) []float64 {
	out := make([]float64, len(a))
	for i, x := range a {
		out[i] = f(x)
	}
	return out
}

func apply2(a, b []float64, f func(x, y float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = f(a[i], b[i])
	}
	return out
}

func apply3(a, b, c []float64, f func(x, y, z float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = f(a[i], b[i], c[i])
	}
	return out
}

func add(a, b []float64) []float64 { return apply2(a, b, func(x, y float64) float64 { return x + y }) }
func sub(a, b []float64) []float64 { return apply2(a, b, func(x, y float64) float64 { return x - y }) }
func mul(a, b []float64) []float64 { return apply2(a, b, func(x, y float64) float64 { return x * y }) }

func scale(a []float64, k float64) []float64 {
	return apply(a, func(x float64) float64 { return x * k })
}

func abs(a []float64) []float64 { return apply(a, math.Abs) }

// div is an unguarded ratio; a zero denominator yields NaN, which is cleaned to 0.
func div(a, b []float64) []float64 {
	return apply2(a, b, func(x, y float64) float64 {
		if y == 0 {
			return nan
		}
		return x / y
	})
}

// divEps guards the denominator with Epsilon.
func divEps(a, b []float64) []float64 {
	return apply2(a, b, func(x, y float64) float64 { return x / (y + Epsilon) })
}

func divScalar(a []float64, k float64) []float64 {
	return apply(a, func(x float64) float64 { return x / k })
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// flag compares element-wise; NaN operands compare false, as in pandas.
func flag(a, b []float64, cmp func(x, y float64) bool) []float64 {
	return apply2(a, b, func(x, y float64) float64 { return b2f(cmp(x, y)) })
}

func gt(x, y float64) bool { return x > y }
func lt(x, y float64) bool { return x < y }

func and(a, b []float64) []float64 {
	return apply2(a, b, func(x, y float64) float64 { return b2f(x != 0 && y != 0) })
}

func maxOf(a, b []float64) []float64 { return apply2(a, b, math.Max) }
func minOf(a, b []float64) []float64 { return apply2(a, b, math.Min) }

// shift lags a by n positions.
func shift(a []float64, n int) []float64 {
	out := filled(len(a), nan)
	for i := n; i < len(a); i++ {
		out[i] = a[i-n]
	}
	return out
}

func diff(a []float64, n int) []float64 { return sub(a, shift(a, n)) }

// pctChange is a[i]/a[i-n] - 1.
func pctChange(a []float64, n int) []float64 {
	return apply(div(a, shift(a, n)), func(x float64) float64 { return x - 1 })
}

// rolling applies f to every full window of n values; a window holding NaN yields NaN.
func rolling(a []float64, n int, f func(w []float64) float64) []float64 {
	out := filled(len(a), nan)
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(a); i++ {
		w := a[i-n+1 : i+1]
		ok := true
		for _, v := range w {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			out[i] = f(w)
		}
	}
	return out
}

func sumOf(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

func meanOf(w []float64) float64 { return sumOf(w) / float64(len(w)) }

func rollingSum(a []float64, n int) []float64  { return rolling(a, n, sumOf) }
func rollingMean(a []float64, n int) []float64 { return rolling(a, n, meanOf) }

func rollingMax(a []float64, n int) []float64 {
	return rolling(a, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

func rollingMin(a []float64, n int) []float64 {
	return rolling(a, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}

// rollingStd is the windowed standard deviation with ddof degrees of freedom.
func rollingStd(a []float64, n, ddof int) []float64 {
	return rolling(a, n, func(w []float64) float64 {
		if len(w)-ddof <= 0 {
			return nan
		}
		m := meanOf(w)
		ss := 0.0
		for _, v := range w {
			d := v - m
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(w)-ddof))
	})
}

// ewm is the adjusted exponentially weighted mean with alpha = 2/(span+1).
// Leading NaNs stay NaN; an interior NaN repeats the previous value.
func ewm(a []float64, span int) []float64 {
	alpha := 2 / (float64(span) + 1)
	decay := 1 - alpha
	out := filled(len(a), nan)
	// running form of sum(decay^k * v) / sum(decay^k); a flat input stays exact
	avg, den := 0.0, 0.0
	started := false
	for i, v := range a {
		if math.IsNaN(v) {
			if started {
				out[i] = avg
				den *= decay
			}
			continue
		}
		started = true
		den = 1 + decay*den
		avg += (v - avg) / den
		out[i] = avg
	}
	return out
}

// cumsum skips NaN values, leaving NaN at their positions.
func cumsum(a []float64) []float64 {
	out := make([]float64, len(a))
	acc := 0.0
	for i, v := range a {
		if math.IsNaN(v) {
			out[i] = nan
			continue
		}
		acc += v
		out[i] = acc
	}
	return out
}

// expandingMean is the causal mean of all non-NaN values up to each index.
func expandingMean(a []float64) []float64 {
	out := filled(len(a), nan)
	sum, n := 0.0, 0
	for i, v := range a {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// where keeps a[i] where cond[i] is set and uses other elsewhere (including NaN a[i] with a false cond).
func where(a, cond []float64, other float64) []float64 {
	return apply2(a, cond, func(x, c float64) float64 {
		if c != 0 {
			return x
		}
		return other
	})
}

func ge(x, y float64) bool { return x >= y }
func le(x, y float64) bool { return x <= y }
func eq(x, y float64) bool { return x == y }

func above(a []float64, k float64) []float64 {
	return apply(a, func(x float64) float64 { return b2f(x > k) })
}

func below(a []float64, k float64) []float64 {
	return apply(a, func(x float64) float64 { return b2f(x < k) })
}

// seq expands a printf pattern over [from, to].
func seq(pattern string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf(pattern, i))
	}
	return out
}

func name(pattern string, p int) string { return fmt.Sprintf(pattern, p) }
