package features

import (
	"math"

	"FinFeat/internal/domain/models"
)

// bar is the geometry of one candle.
type bar struct {
	o, h, l, c float64
	body       float64
	rng        float64
	upper      float64
	lower      float64
}

func barAt(s models.Series, i int) bar {
	o, h, l, c := s.Open[i], s.High[i], s.Low[i], s.Close[i]
	return bar{
		o: o, h: h, l: l, c: c,
		body:  math.Abs(c - o),
		rng:   h - l,
		upper: h - math.Max(o, c),
		lower: math.Min(o, c) - l,
	}
}

func (b bar) bull() bool { return b.c > b.o }
func (b bar) bear() bool { return b.c < b.o }

func (b bar) bodyPct() float64 { return b.body / (b.rng + Epsilon) }
func (b bar) mid() float64     { return (b.o + b.c) / 2 }

func (b bar) doji() bool { return b.bodyPct() < 0.1 }

// long reports a body covering most of the range.
func (b bar) long() bool { return b.bodyPct() >= 0.6 }

// trend compares the close before i with the close n bars earlier: +1 up, -1 down, 0 flat or unknown.
func trend(close []float64, i, n int) int {
	if i-1-n < 0 {
		return 0
	}
	switch d := close[i-1] - close[i-1-n]; {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

// scan evaluates f for every bar from index `from`; earlier bars are 0.
func scan(s models.Series, from int, f func(i int) float64) []float64 {
	out := zeros(s.Len())
	for i := from; i < s.Len(); i++ {
		out[i] = f(i)
	}
	return out
}

func dojiFlags(s models.Series) (doji, dragonfly, gravestone, longLegged []float64) {
	n := s.Len()
	doji, dragonfly, gravestone, longLegged = zeros(n), zeros(n), zeros(n), zeros(n)
	for i := 0; i < n; i++ {
		b := barAt(s, i)
		if !b.doji() || b.rng <= 0 {
			continue
		}
		doji[i] = 1
		up, lo := b.upper/b.rng, b.lower/b.rng
		dragonfly[i] = b2f(up <= 0.1 && lo >= 0.6)
		gravestone[i] = b2f(lo <= 0.1 && up >= 0.6)
		longLegged[i] = b2f(up >= 0.3 && lo >= 0.3)
	}
	return doji, dragonfly, gravestone, longLegged
}

// lowerWick marks small-bodied bars with a long lower shadow; ctx selects the
// preceding trend (-1 hammer, +1 hanging man).
func lowerWick(s models.Series, ctx int) []float64 {
	return scan(s, 1, func(i int) float64 {
		b := barAt(s, i)
		shape := b.body > 0 && b.lower >= 2*b.body && b.upper <= 0.3*b.body
		return b2f(shape && trend(s.Close, i, 3) == ctx)
	})
}

// upperWick marks small-bodied bars with a long upper shadow; ctx -1 inverted hammer, +1 shooting star.
func upperWick(s models.Series, ctx int) []float64 {
	return scan(s, 1, func(i int) float64 {
		b := barAt(s, i)
		shape := b.body > 0 && b.upper >= 2*b.body && b.lower <= 0.3*b.body
		return b2f(shape && trend(s.Close, i, 3) == ctx)
	})
}

func spinningTop(s models.Series) []float64 {
	return scan(s, 0, func(i int) float64 {
		b := barAt(s, i)
		p := b.bodyPct()
		return b2f(p >= 0.1 && p <= 0.3 && b.upper > b.body && b.lower > b.body)
	})
}

// marubozu is +1 for a bullish bar without meaningful shadows, -1 for a bearish one.
func marubozu(s models.Series) []float64 {
	return scan(s, 0, func(i int) float64 {
		b := barAt(s, i)
		if b.rng <= 0 || b.bodyPct() < 0.95 {
			return 0
		}
		if b.bull() {
			return 1
		}
		if b.bear() {
			return -1
		}
		return 0
	})
}

// engulfing is +1 when a bullish body engulfs a bearish predecessor, -1 for the mirror.
func engulfing(s models.Series) []float64 {
	return scan(s, 1, func(i int) float64 {
		p, b := barAt(s, i-1), barAt(s, i)
		switch {
		case b.bull() && p.bear() && b.c > p.o && b.o < p.c:
			return 1
		case b.bear() && p.bull() && b.c < p.o && b.o > p.c:
			return -1
		default:
			return 0
		}
	})
}

// harami is +1 when a bullish body sits inside a long bearish predecessor, -1 for the mirror.
func harami(s models.Series) []float64 {
	return scan(s, 1, func(i int) float64 {
		p, b := barAt(s, i-1), barAt(s, i)
		inside := math.Max(b.o, b.c) < math.Max(p.o, p.c) && math.Min(b.o, b.c) > math.Min(p.o, p.c)
		switch {
		case inside && p.bear() && p.long() && b.bull():
			return 1
		case inside && p.bull() && p.long() && b.bear():
			return -1
		default:
			return 0
		}
	})
}

func piercing(s models.Series) []float64 {
	return scan(s, 1, func(i int) float64 {
		p, b := barAt(s, i-1), barAt(s, i)
		return b2f(p.bear() && p.long() && b.bull() && b.o < p.l && b.c > p.mid() && b.c < p.o)
	})
}

func darkCloud(s models.Series) []float64 {
	return scan(s, 1, func(i int) float64 {
		p, b := barAt(s, i-1), barAt(s, i)
		return b2f(p.bull() && p.long() && b.bear() && b.o > p.h && b.c < p.mid() && b.c > p.o)
	})
}

// stars detects the three-bar morning (+1) and evening (-1) star.
func stars(s models.Series) []float64 {
	return scan(s, 2, func(i int) float64 {
		a, m, b := barAt(s, i-2), barAt(s, i-1), barAt(s, i)
		small := m.body <= 0.3*a.body
		switch {
		case a.bear() && a.long() && small && b.bull() && b.c > a.mid():
			return 1
		case a.bull() && a.long() && small && b.bear() && b.c < a.mid():
			return -1
		default:
			return 0
		}
	})
}

// threeSoldiers is +1 for three white soldiers, -1 for three black crows.
func threeSoldiers(s models.Series) []float64 {
	return scan(s, 2, func(i int) float64 {
		a, m, b := barAt(s, i-2), barAt(s, i-1), barAt(s, i)
		opensInside := func(prev, cur bar) bool {
			return cur.o >= math.Min(prev.o, prev.c) && cur.o <= math.Max(prev.o, prev.c)
		}
		switch {
		case a.bull() && m.bull() && b.bull() && m.c > a.c && b.c > m.c && opensInside(a, m) && opensInside(m, b):
			return 1
		case a.bear() && m.bear() && b.bear() && m.c < a.c && b.c < m.c && opensInside(a, m) && opensInside(m, b):
			return -1
		default:
			return 0
		}
	})
}

func positive(a []float64) []float64 { return apply(a, func(x float64) float64 { return b2f(x > 0) }) }
func negative(a []float64) []float64 { return apply(a, func(x float64) float64 { return b2f(x < 0) }) }
