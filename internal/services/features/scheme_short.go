package features

import (
	"FinFeat/internal/domain/models"
)

var shortHorizonNames = append([]string{
	"open", "high", "low", "close", "volume",
	"hl_spread", "oc_spread", "price_change", "volume_change",
	"upper_shadow", "lower_shadow", "body_size", "body_ratio", "hl_ratio", "oc_ratio",
	"sma_5", "ema_5", "price_sma_5_ratio",
	"sma_10", "ema_10", "price_sma_10_ratio",
	"sma_20", "ema_20", "price_sma_20_ratio",
	"sma_50", "ema_50", "price_sma_50_ratio",
	"sma_100", "ema_100", "price_sma_100_ratio",
	"rsi_7", "rsi_14", "rsi_21",
	"macd", "macd_signal", "macd_hist",
	"bb_upper", "bb_lower", "bb_width",
	"atr_14",
	"stoch_k", "stoch_d",
	"volume_sma_20", "volume_ratio", "obv", "vwap", "price_vwap_ratio",
	"momentum_10", "roc_10", "williams_r",
	"doji", "hammer", "shooting_star", "engulfing_bull", "engulfing_bear",
}, seq("pattern_%d", 6, 26)...)

var maPeriods = []int{5, 10, 20, 50, 100}

// ShortHorizon is the intraday scheme: raw OHLCV, candle shape, moving
// averages, oscillators, volume indicators and five candle flags followed by
// 21 reserved zero columns.
type ShortHorizon struct{}

func (ShortHorizon) Name() string    { return "short_horizon" }
func (ShortHorizon) Names() []string { return append([]string(nil), shortHorizonNames...) }
func (ShortHorizon) WarmUp() int     { return 100 }

func (ShortHorizon) Compute(s models.Series) (map[string][]float64, error) {
	o, h, l, c, v := s.Open, s.High, s.Low, s.Close, s.Volume
	n := s.Len()
	out := make(map[string][]float64, NumFeatures)

	out["open"], out["high"], out["low"], out["close"], out["volume"] = o, h, l, c, v

	hl := sub(h, l)
	body := abs(sub(c, o))
	upper := sub(h, maxOf(o, c))
	lower := sub(minOf(o, c), l)
	bodyRatio := divEps(body, hl)
	out["hl_spread"] = hl
	out["oc_spread"] = sub(c, o)
	out["price_change"] = pctChange(c, 1)
	out["volume_change"] = pctChange(v, 1)
	out["upper_shadow"] = upper
	out["lower_shadow"] = lower
	out["body_size"] = body
	out["body_ratio"] = bodyRatio
	out["hl_ratio"] = divEps(h, l)
	out["oc_ratio"] = divEps(c, o)

	for _, p := range maPeriods {
		sma := rollingMean(c, p)
		out[name("sma_%d", p)] = sma
		out[name("ema_%d", p)] = ewm(c, p)
		out[name("price_sma_%d_ratio", p)] = div(c, sma)
	}

	for _, p := range []int{7, 14, 21} {
		out[name("rsi_%d", p)] = rsi(c, p)
	}

	out["macd"], out["macd_signal"], out["macd_hist"] = macd(c, 12, 26, 9)

	bbUp, bbMid, bbLo := bollinger(c, 20, 2, 1)
	out["bb_upper"] = bbUp
	out["bb_lower"] = bbLo
	out["bb_width"] = div(sub(bbUp, bbLo), bbMid)

	out["atr_14"] = atr(h, l, c, 14)

	k := stochasticK(h, l, c, 14)
	out["stoch_k"] = k
	out["stoch_d"] = rollingMean(k, 3)

	volSMA := rollingMean(v, 20)
	vw := vwap(c, v)
	out["volume_sma_20"] = volSMA
	out["volume_ratio"] = div(v, volSMA)
	out["obv"] = obvUpDown(c, v)
	out["vwap"] = vw
	out["price_vwap_ratio"] = div(c, vw)

	out["momentum_10"] = diff(c, 10)
	out["roc_10"] = scale(pctChange(c, 10), 100)
	out["williams_r"] = williamsR(h, l, c, 14)

	out["doji"] = below(bodyRatio, 0.1)
	out["hammer"] = and(flag(lower, scale(body, 2), gt), flag(upper, scale(body, 0.3), lt))
	out["shooting_star"] = and(flag(upper, scale(body, 2), gt), flag(lower, scale(body, 0.3), lt))

	prevO, prevC := shift(o, 1), shift(c, 1)
	out["engulfing_bull"] = and(and(flag(c, o, gt), flag(prevC, prevO, lt)), and(flag(c, prevO, gt), flag(o, prevC, lt)))
	out["engulfing_bear"] = and(and(flag(c, o, lt), flag(prevC, prevO, gt)), and(flag(c, prevO, lt), flag(o, prevC, gt)))

	for _, p := range seq("pattern_%d", 6, 26) {
		out[p] = zeros(n)
	}
	return out, nil
}
