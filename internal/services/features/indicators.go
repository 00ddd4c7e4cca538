package features

import "math"

func zeros(n int) []float64 { return make([]float64, n) }

// gainsLosses splits one-bar close deltas into positive gains and absolute losses.
// An undefined delta counts as zero for both.
func gainsLosses(close []float64) ([]float64, []float64) {
	delta := diff(close, 1)
	z := zeros(len(close))
	gain := where(delta, flag(delta, z, gt), 0)
	loss := scale(where(delta, flag(delta, z, lt), 0), -1)
	return gain, loss
}

// rsi uses rolling means of gains and losses: 100 - 100/(1+RS), RS = gain/(loss+eps).
func rsi(close []float64, n int) []float64 {
	gain, loss := gainsLosses(close)
	rs := divEps(rollingMean(gain, n), rollingMean(loss, n))
	return apply(rs, func(x float64) float64 { return 100 - 100/(1+x) })
}

// rsiWilder seeds with the simple mean of the first n deltas, then smooths
// with (prev*(n-1)+cur)/n.
func rsiWilder(close []float64, n int) []float64 {
	out := filled(len(close), nan)
	if len(close) <= n {
		return out
	}
	gain, loss := gainsLosses(close)
	var ag, al float64
	for i := 1; i <= n; i++ {
		ag += gain[i]
		al += loss[i]
	}
	ag /= float64(n)
	al /= float64(n)
	out[n] = wilderRSI(ag, al)
	for i := n + 1; i < len(close); i++ {
		ag = (ag*float64(n-1) + gain[i]) / float64(n)
		al = (al*float64(n-1) + loss[i]) / float64(n)
		out[i] = wilderRSI(ag, al)
	}
	return out
}

func wilderRSI(ag, al float64) float64 {
	if ag+al == 0 {
		return 0
	}
	return 100 * ag / (ag + al)
}

// macd returns the fast-slow EMA spread, its signal EMA and the histogram.
func macd(close []float64, fast, slow, signal int) (line, sig, hist []float64) {
	line = sub(ewm(close, fast), ewm(close, slow))
	sig = ewm(line, signal)
	hist = sub(line, sig)
	return line, sig, hist
}

// bollinger returns mid ± k·std over n bars.
func bollinger(close []float64, n int, k float64, ddof int) (upper, mid, lower []float64) {
	mid = rollingMean(close, n)
	sd := scale(rollingStd(close, n, ddof), k)
	return add(mid, sd), mid, sub(mid, sd)
}

// trueRange is max(h-l, |h-prevC|, |l-prevC|); the first bar uses h-l.
func trueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(high[i]-close[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-close[i-1]))
		}
		out[i] = tr
	}
	return out
}

func atr(high, low, close []float64, n int) []float64 {
	return rollingMean(trueRange(high, low, close), n)
}

// atrWilder seeds with the mean true range of bars 1..n.
func atrWilder(high, low, close []float64, n int) []float64 {
	tr := trueRange(high, low, close)
	out := filled(len(close), nan)
	if len(close) <= n {
		return out
	}
	a := meanOf(tr[1 : n+1])
	out[n] = a
	for i := n + 1; i < len(close); i++ {
		a = (a*float64(n-1) + tr[i]) / float64(n)
		out[i] = a
	}
	return out
}

// stochasticK is 100·(close-lowN)/(highN-lowN+eps).
func stochasticK(high, low, close []float64, n int) []float64 {
	ll := rollingMin(low, n)
	hh := rollingMax(high, n)
	return scale(divEps(sub(close, ll), sub(hh, ll)), 100)
}

func williamsR(high, low, close []float64, n int) []float64 {
	ll := rollingMin(low, n)
	hh := rollingMax(high, n)
	return scale(divEps(sub(hh, close), sub(hh, ll)), -100)
}

// obvUpDown adds volume on an up close and subtracts it otherwise (including the first bar).
func obvUpDown(close, volume []float64) []float64 {
	d := diff(close, 1)
	signed := make([]float64, len(close))
	for i := range close {
		if d[i] > 0 {
			signed[i] = volume[i]
		} else {
			signed[i] = -volume[i]
		}
	}
	return cumsum(signed)
}

// obvSign accumulates volume·sign(Δclose); the first bar is undefined.
func obvSign(close, volume []float64) []float64 {
	d := diff(close, 1)
	signed := apply2(volume, d, func(v, x float64) float64 {
		switch {
		case math.IsNaN(x):
			return nan
		case x > 0:
			return v
		case x < 0:
			return -v
		default:
			return 0
		}
	})
	return cumsum(signed)
}

// obvSeeded starts at the first bar's volume and adds or subtracts thereafter.
func obvSeeded(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	if len(close) == 0 {
		return out
	}
	out[0] = volume[0]
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// vwap is cumulative close·volume over cumulative volume.
func vwap(close, volume []float64) []float64 {
	return div(cumsum(mul(close, volume)), cumsum(volume))
}

func typicalPrice(high, low, close []float64) []float64 {
	return apply3(high, low, close, func(h, l, c float64) float64 { return (h + l + c) / 3 })
}

// cci is (tp - sma(tp)) / (0.015·meanDev + eps).
func cci(high, low, close []float64, n int) []float64 {
	tp := typicalPrice(high, low, close)
	sma := rollingMean(tp, n)
	mad := rollingMean(abs(sub(tp, sma)), n)
	return divEps(sub(tp, sma), scale(mad, 0.015))
}

// mfi compares money flow on rising and falling typical price over n bars.
func mfi(high, low, close, volume []float64, n int) []float64 {
	tp := typicalPrice(high, low, close)
	raw := mul(tp, volume)
	prev := shift(tp, 1)
	pos := where(raw, flag(tp, prev, gt), 0)
	neg := where(raw, flag(tp, prev, lt), 0)
	ratio := divEps(rollingSum(pos, n), rollingSum(neg, n))
	return apply(ratio, func(x float64) float64 { return 100 - 100/(1+x) })
}

// adx returns Wilder's ADX with the +DI and -DI lines.
func adx(high, low, close []float64, n int) (adxLine, plusDI, minusDI []float64) {
	size := len(close)
	adxLine, plusDI, minusDI = filled(size, nan), filled(size, nan), filled(size, nan)
	if size < 2*n {
		return adxLine, plusDI, minusDI
	}
	tr := trueRange(high, low, close)
	plusDM, minusDM := zeros(size), zeros(size)
	for i := 1; i < size; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	var sTR, sPlus, sMinus float64
	for i := 1; i <= n; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}
	dx := filled(size, nan)
	for i := n; i < size; i++ {
		if i > n {
			sTR = sTR - sTR/float64(n) + tr[i]
			sPlus = sPlus - sPlus/float64(n) + plusDM[i]
			sMinus = sMinus - sMinus/float64(n) + minusDM[i]
		}
		if sTR == 0 {
			plusDI[i], minusDI[i], dx[i] = 0, 0, 0
			continue
		}
		plusDI[i] = 100 * sPlus / sTR
		minusDI[i] = 100 * sMinus / sTR
		if s := plusDI[i] + minusDI[i]; s != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / s
		} else {
			dx[i] = 0
		}
	}
	first := 2*n - 1
	a := meanOf(dx[n : first+1])
	adxLine[first] = a
	for i := first + 1; i < size; i++ {
		a = (a*float64(n-1) + dx[i]) / float64(n)
		adxLine[i] = a
	}
	return adxLine, plusDI, minusDI
}

// midRange is the midpoint of the n-bar high/low channel.
func midRange(high, low []float64, n int) []float64 {
	return scale(add(rollingMax(high, n), rollingMin(low, n)), 0.5)
}
