package features

import (
	"math"

	"FinFeat/internal/domain/models"
)

var patternNames = seq("f%d", 0, NumFeatures-1)

// Pattern is the candlestick-pattern scheme. Columns are positional (f0..f75):
//
//	f0-f24   candle patterns and tweezers
//	f25-f29  price action
//	f30-f51  RSI, MACD, slow stochastic, Bollinger, ATR, ADX
//	f52-f58  Ichimoku
//	f59-f63  volume
//	f64-f75  moving averages and trend flags
//
// Oscillators use Wilder smoothing; Bollinger bands use the population std.
type Pattern struct{}

func (Pattern) Name() string    { return "pattern" }
func (Pattern) Names() []string { return append([]string(nil), patternNames...) }
func (Pattern) WarmUp() int     { return 200 }

func (Pattern) Compute(s models.Series) (map[string][]float64, error) {
	o, h, l, c, v := s.Open, s.High, s.Low, s.Close, s.Volume
	out := make(map[string][]float64, NumFeatures)
	set := func(i int, col []float64) { out[patternNames[i]] = col }

	doji, dragonfly, gravestone, longLegged := dojiFlags(s)
	set(0, doji)
	set(1, dragonfly)
	set(2, gravestone)
	set(3, longLegged)
	set(4, lowerWick(s, -1))
	set(5, upperWick(s, -1))
	set(6, upperWick(s, 1))
	set(7, lowerWick(s, 1))
	set(8, spinningTop(s))

	mar := marubozu(s)
	set(9, positive(mar))
	set(10, negative(mar))
	eng := engulfing(s)
	set(11, positive(eng))
	set(12, negative(eng))
	set(13, piercing(s))
	set(14, darkCloud(s))
	har := harami(s)
	set(15, positive(har))
	set(16, negative(har))

	green, red := flag(c, o, gt), flag(c, o, lt)
	set(17, and(flag(l, shift(l, 1), eq), green))
	set(18, and(flag(h, shift(h, 1), eq), red))

	st := stars(s)
	set(19, positive(st))
	set(20, negative(st))
	sol := threeSoldiers(s)
	set(21, positive(sol))
	set(22, negative(sol))

	c3 := shift(c, 3)
	set(23, and(flag(c, c3, gt), green))
	set(24, and(flag(c, c3, lt), red))

	ret := pctChange(c, 1)
	hl := sub(h, l)
	set(25, ret)
	set(26, apply2(c, shift(c, 1), func(x, p float64) float64 {
		if p == 0 {
			return nan
		}
		return math.Log(x / p)
	}))
	set(27, rollingStd(ret, 20, 1))
	set(28, div(hl, c))
	set(29, divEps(sub(c, l), hl))

	r := rsiWilder(c, 14)
	set(30, r)
	set(31, below(r, 30))
	set(32, above(r, 70))

	line, sig, hist := macd(c, 12, 26, 9)
	set(33, line)
	set(34, sig)
	set(35, hist)
	set(36, above(hist, 0))
	set(37, flag(line, sig, gt))

	slowK := rollingMean(stochasticK(h, l, c, 14), 3)
	slowD := rollingMean(slowK, 3)
	set(38, slowK)
	set(39, slowD)
	set(40, and(flag(slowK, slowD, gt), below(slowK, 80)))

	bbUp, _, bbLo := bollinger(c, 20, 2, 0)
	set(41, divEps(sub(c, bbLo), sub(bbUp, bbLo)))
	set(42, flag(c, bbUp, gt))
	set(43, flag(c, bbLo, lt))

	a := atrWilder(h, l, c, 14)
	atrPct := div(a, c)
	set(44, a)
	set(45, atrPct)
	set(46, flag(atrPct, rollingMean(atrPct, 20), gt))

	adxLine, plusDI, minusDI := adx(h, l, c, 14)
	strong := above(adxLine, 25)
	set(47, adxLine)
	set(48, plusDI)
	set(49, minusDI)
	set(50, strong)
	set(51, and(flag(plusDI, minusDI, gt), strong))

	tenkan := midRange(h, l, 9)
	kijun := midRange(h, l, 26)
	spanA := scale(add(tenkan, kijun), 0.5)
	spanB := midRange(h, l, 52)
	set(52, tenkan)
	set(53, kijun)
	set(54, spanA)
	set(55, spanB)
	set(56, flag(spanA, spanB, gt))
	set(57, and(flag(c, spanA, gt), flag(c, spanB, gt)))
	set(58, and(flag(c, spanA, lt), flag(c, spanB, lt)))

	volSMA := rollingMean(v, 20)
	volRatio := divEps(v, volSMA)
	set(59, v)
	set(60, volSMA)
	set(61, volRatio)
	set(62, obvSeeded(c, v))
	set(63, above(volRatio, 1.5))

	sma20, sma50, sma200 := rollingMean(c, 20), rollingMean(c, 50), rollingMean(c, 200)
	prev50, prev200 := shift(sma50, 1), shift(sma200, 1)
	set(64, sma20)
	set(65, sma50)
	set(66, sma200)
	set(67, flag(c, sma20, gt))
	set(68, flag(c, sma50, gt))
	set(69, flag(c, sma200, gt))
	set(70, and(flag(sma50, sma200, gt), flag(prev50, prev200, le)))
	set(71, and(flag(sma50, sma200, lt), flag(prev50, prev200, ge)))
	set(72, and(flag(sma20, sma50, gt), flag(sma50, sma200, gt)))

	set(73, flag(h, shift(h, 1), gt))
	set(74, flag(l, shift(l, 1), lt))
	set(75, and(flag(c, sma20, gt), flag(sma20, sma50, gt)))
	return out, nil
}
