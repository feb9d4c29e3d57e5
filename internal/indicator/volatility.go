package indicator

import (
	"math"
	"sort"

	"autotrader/internal/model"
)

// StdDev is the population standard deviation of the last period values.
func StdDev(values []float64, period int) (float64, error) {
	mean, err := SMA(values, period)
	if err != nil {
		return 0, err
	}
	sumSq := 0.0
	for _, v := range values[len(values)-period:] {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period)), nil
}

type BollingerBands struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
	PercentB  float64 `json:"percentB"`
}

func Bollinger(values []float64, period int, width float64) (BollingerBands, error) {
	mid, err := SMA(values, period)
	if err != nil {
		return BollingerBands{}, err
	}
	sd, _ := StdDev(values, period)
	bb := BollingerBands{
		Middle: mid,
		Upper:  mid + sd*width,
		Lower:  mid - sd*width,
	}
	if mid != 0 {
		bb.Bandwidth = (bb.Upper - bb.Lower) / mid
	}
	if bb.Upper != bb.Lower {
		bb.PercentB = (values[len(values)-1] - bb.Lower) / (bb.Upper - bb.Lower)
	}
	return bb, nil
}

// BollingerSeries returns one band per full window.
func BollingerSeries(values []float64, period int, width float64) []BollingerBands {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]BollingerBands, 0, len(values)-period+1)
	for end := period; end <= len(values); end++ {
		bb, err := Bollinger(values[end-period:end], period, width)
		if err != nil {
			return out
		}
		out = append(out, bb)
	}
	return out
}

// IsBollingerSqueeze reports whether the latest bandwidth sits at or below the
// floor(lookback*percentile)-th value of the sorted lookback window.
func IsBollingerSqueeze(bands []BollingerBands, lookback int, percentile float64) bool {
	if lookback <= 0 || len(bands) < lookback {
		return false
	}
	widths := make([]float64, 0, lookback)
	for _, b := range bands[len(bands)-lookback:] {
		widths = append(widths, b.Bandwidth)
	}
	sort.Float64s(widths)
	idx := int(float64(lookback) * percentile)
	if idx >= lookback {
		idx = lookback - 1
	}
	if idx < 0 {
		idx = 0
	}
	return bands[len(bands)-1].Bandwidth <= widths[idx]
}

func TrueRange(cur, prev model.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR uses Wilder smoothing over true ranges.
func ATR(candles []model.Candle, period int) (float64, error) {
	series := ATRSeries(candles, period)
	if len(series) == 0 {
		return 0, insufficient("atr", period+1, len(candles))
	}
	return series[len(series)-1], nil
}

func ATRSeries(candles []model.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	trs := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs[i-1] = TrueRange(candles[i], candles[i-1])
	}
	p := float64(period)
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= p
	out := make([]float64, 0, len(trs)-period+1)
	out = append(out, atr)
	for i := period; i < len(trs); i++ {
		atr = (atr*(p-1) + trs[i]) / p
		out = append(out, atr)
	}
	return out
}

// Stochastic returns %K over kPeriod and %D as the dPeriod SMA of %K.
// A flat range yields 50.
func Stochastic(candles []model.Candle, kPeriod, dPeriod int) (StochasticResult, error) {
	if kPeriod <= 0 || len(candles) < kPeriod {
		return StochasticResult{}, insufficient("stochastic", kPeriod, len(candles))
	}
	ks := make([]float64, 0, len(candles)-kPeriod+1)
	for i := kPeriod - 1; i < len(candles); i++ {
		hi, lo := candles[i].High, candles[i].Low
		for j := i - kPeriod + 1; j < i; j++ {
			hi = math.Max(hi, candles[j].High)
			lo = math.Min(lo, candles[j].Low)
		}
		k := 50.0
		if hi != lo {
			k = (candles[i].Close - lo) / (hi - lo) * 100
		}
		ks = append(ks, k)
	}
	res := StochasticResult{K: ks[len(ks)-1], D: ks[len(ks)-1]}
	if d, err := SMA(ks, dPeriod); err == nil {
		res.D = d
	}
	return res, nil
}

// Highest returns the max of the last period values, or of all values when
// fewer are available.
func Highest(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	window := tail(values, period)
	hi := window[0]
	for _, v := range window[1:] {
		hi = math.Max(hi, v)
	}
	return hi
}

func Lowest(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	window := tail(values, period)
	lo := window[0]
	for _, v := range window[1:] {
		lo = math.Min(lo, v)
	}
	return lo
}

// ROC is the percent change over period bars, 0 when undefined.
func ROC(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	past := values[len(values)-period-1]
	if past == 0 {
		return 0
	}
	return (values[len(values)-1] - past) / past * 100
}

func Momentum(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	return values[len(values)-1] - values[len(values)-period-1]
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
