package features

import "FinFeat/internal/domain/models"

var dailyNames = []string{
	"return_3d", "volatility_3d", "volume_change_3d",
	"return_7d", "volatility_7d", "volume_change_7d",
	"return_14d", "volatility_14d", "volume_change_14d",
	"return_21d", "volatility_21d", "volume_change_21d",
	"return_30d", "volatility_30d", "volume_change_30d",
	"ma_7_ratio", "ma_7_slope", "ma_14_ratio", "ma_14_slope", "ma_21_ratio", "ma_21_slope",
	"ma_50_ratio", "ma_50_slope", "ma_100_ratio", "ma_200_ratio",
	"high_30d", "low_30d", "range_30d",
	"high_60d", "low_60d", "range_60d",
	"high_90d", "low_90d", "range_90d",
	"52w_high",
	"rsi_14", "rsi_21", "rsi_28",
	"volume_ma_10", "volume_ma_30", "volume_trend",
	"obv_normalized", "obv_slope",
	"ad_line", "ad_slope",
	"weekly_trend", "monthly_trend", "quarterly_trend",
	"atr_14", "atr_30",
	"higher_highs", "higher_lows", "trend_strength",
	"roc_10", "roc_20", "roc_30",
	"cci", "mfi",
	"spread",
}

// Daily is the multi-day scheme over 1d candles. It needs a year of history
// before the 52-week column is defined.
type Daily struct{}

func (Daily) Name() string    { return "daily" }
func (Daily) Names() []string { return append([]string(nil), dailyNames...) }
func (Daily) WarmUp() int     { return 252 }

func (Daily) Compute(s models.Series) (map[string][]float64, error) {
	h, l, c, v := s.High, s.Low, s.Close, s.Volume
	out := make(map[string][]float64, len(dailyNames))

	ret := pctChange(c, 1)
	for _, p := range []int{3, 7, 14, 21, 30} {
		out[name("return_%dd", p)] = pctChange(c, p)
		out[name("volatility_%dd", p)] = rollingStd(ret, p, 1)
		out[name("volume_change_%dd", p)] = pctChange(v, p)
	}

	for _, p := range []int{7, 14, 21, 50, 100, 200} {
		ma := rollingMean(c, p)
		out[name("ma_%d_ratio", p)] = divEps(c, ma)
		if p <= 50 {
			out[name("ma_%d_slope", p)] = pctChange(ma, 5)
		}
	}

	for _, p := range []int{30, 60, 90} {
		hi, lo := rollingMax(h, p), rollingMin(l, p)
		out[name("high_%dd", p)] = div(hi, c)
		out[name("low_%dd", p)] = divEps(c, lo)
		out[name("range_%dd", p)] = div(sub(hi, lo), c)
	}
	out["52w_high"] = div(rollingMax(h, 252), c)

	for _, p := range []int{14, 21, 28} {
		out[name("rsi_%d", p)] = rsi(c, p)
	}

	volMean := expandingMean(v)
	vol30 := rollingMean(v, 30)
	out["volume_ma_10"] = divEps(rollingMean(v, 10), volMean)
	out["volume_ma_30"] = divEps(vol30, volMean)
	out["volume_trend"] = divEps(vol30, rollingMean(v, 90))

	obv := obvSign(c, v)
	out["obv_normalized"] = divEps(obv, rollingMean(abs(obv), 30))
	out["obv_slope"] = pctChange(obv, 10)

	hl := sub(h, l)
	mfm := divEps(apply3(h, l, c, func(x, y, z float64) float64 { return (z - y) - (x - z) }), hl)
	ad := divScalar(cumsum(mul(mfm, v)), 1e9)
	out["ad_line"] = ad
	out["ad_slope"] = pctChange(ad, 10)

	out["weekly_trend"] = pctChange(c, 7)
	out["monthly_trend"] = pctChange(c, 30)
	out["quarterly_trend"] = pctChange(c, 90)

	out["atr_14"] = div(rollingMean(hl, 14), c)
	out["atr_30"] = div(rollingMean(hl, 30), c)

	out["higher_highs"] = divScalar(rollingSum(flag(h, shift(h, 1), gt), 10), 10)
	out["higher_lows"] = divScalar(rollingSum(flag(l, shift(l, 1), gt), 10), 10)
	out["trend_strength"] = abs(pctChange(c, 20))

	for _, p := range []int{10, 20, 30} {
		out[name("roc_%d", p)] = scale(pctChange(c, p), 100)
	}

	out["cci"] = cci(h, l, c, 20)
	out["mfi"] = mfi(h, l, c, v, 14)
	out["spread"] = div(hl, c)
	return out, nil
}
