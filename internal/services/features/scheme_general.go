package features

import "FinFeat/internal/domain/models"

var generalNames = []string{
	"close_open_ratio", "high_low_ratio", "close_high_ratio", "close_low_ratio", "volume_ratio",
	"return_1", "return_3", "return_5", "return_7", "return_10",
	"ma_5_ratio", "ma_5_slope", "ma_10_ratio", "ma_10_slope",
	"ma_20_ratio", "ma_20_slope", "ma_50_ratio", "ma_50_slope",
	"volatility_5", "range_5", "volatility_10", "range_10", "volatility_20", "range_20",
	"atr_ratio",
	"volume_sma_5", "volume_sma_10", "volume_sma_20", "volume_std",
	"obv_normalized",
	"rsi_7", "rsi_14", "rsi_21", "rsi_28",
	"rsi_oversold",
	"higher_high", "lower_low", "higher_low", "lower_high",
	"body_ratio", "upper_shadow", "lower_shadow", "is_green", "is_doji",
	"green_streak_1", "green_streak_2", "green_streak_3", "green_streak_4", "green_streak_5",
	"distance_from_high_20", "distance_from_low_20", "distance_from_high_50", "distance_from_low_50",
	"pivot_point", "pivot_ratio",
	"spread", "typical_price", "weighted_close", "price_position", "volume_price_trend",
}

// General is the cross-asset intraday scheme built from price ratios. Volume
// and OBV normalisers use the expanding mean up to each bar, so no row
// depends on later candles.
type General struct{}

func (General) Name() string    { return "general" }
func (General) Names() []string { return append([]string(nil), generalNames...) }
func (General) WarmUp() int     { return 50 }

func (General) Compute(s models.Series) (map[string][]float64, error) {
	o, h, l, c, v := s.Open, s.High, s.Low, s.Close, s.Volume
	out := make(map[string][]float64, len(generalNames))

	volMean := expandingMean(v)
	out["close_open_ratio"] = divEps(c, o)
	out["high_low_ratio"] = divEps(h, l)
	out["close_high_ratio"] = divEps(c, h)
	out["close_low_ratio"] = divEps(c, l)
	out["volume_ratio"] = divEps(v, volMean)

	for _, p := range []int{1, 3, 5, 7, 10} {
		out[name("return_%d", p)] = pctChange(c, p)
	}

	for _, p := range []int{5, 10, 20, 50} {
		ma := rollingMean(c, p)
		out[name("ma_%d_ratio", p)] = divEps(c, ma)
		out[name("ma_%d_slope", p)] = pctChange(ma, 1)
	}

	ret := pctChange(c, 1)
	hl := sub(h, l)
	for _, p := range []int{5, 10, 20} {
		out[name("volatility_%d", p)] = rollingStd(ret, p, 1)
		out[name("range_%d", p)] = div(rollingMean(hl, p), c)
	}
	out["atr_ratio"] = div(rollingMean(hl, 14), c)

	for _, p := range []int{5, 10, 20} {
		out[name("volume_sma_%d", p)] = div(v, rollingMean(v, p))
	}
	out["volume_std"] = divEps(rollingStd(v, 20, 1), volMean)

	obv := obvSign(c, v)
	out["obv_normalized"] = divEps(obv, expandingMean(abs(obv)))

	for _, p := range []int{7, 14, 21, 28} {
		out[name("rsi_%d", p)] = rsi(c, p)
	}
	out["rsi_oversold"] = below(out["rsi_14"], 30)

	prevH, prevL := shift(h, 1), shift(l, 1)
	out["higher_high"] = flag(h, prevH, gt)
	out["lower_low"] = flag(l, prevL, lt)
	out["higher_low"] = flag(l, prevL, gt)
	out["lower_high"] = flag(h, prevH, lt)

	body := abs(sub(c, o))
	bodyRatio := divEps(body, hl)
	green := flag(c, o, gt)
	out["body_ratio"] = bodyRatio
	out["upper_shadow"] = divEps(sub(h, maxOf(c, o)), body)
	out["lower_shadow"] = divEps(sub(minOf(c, o), l), body)
	out["is_green"] = green
	out["is_doji"] = below(bodyRatio, 0.1)

	for i := 1; i <= 5; i++ {
		out[name("green_streak_%d", i)] = divScalar(rollingSum(green, i), float64(i))
	}

	for _, p := range []int{20, 50} {
		out[name("distance_from_high_%d", p)] = div(sub(rollingMax(h, p), c), c)
		out[name("distance_from_low_%d", p)] = div(sub(c, rollingMin(l, p)), c)
	}

	tp := typicalPrice(h, l, c)
	out["pivot_point"] = tp
	out["pivot_ratio"] = divEps(c, tp)

	out["spread"] = div(hl, c)
	out["typical_price"] = tp
	out["weighted_close"] = apply3(h, l, c, func(x, y, z float64) float64 { return (x + y + 2*z) / 4 })
	out["price_position"] = divEps(sub(c, l), hl)
	out["volume_price_trend"] = divScalar(cumsum(mul(v, ret)), 1e6)
	return out, nil
}
