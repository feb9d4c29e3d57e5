package indicator

import (
	"github.com/yanun0323/errors"

	"autotrader/internal/model"
	"autotrader/pkg/exception"
)

func insufficient(name string, need, have int) error {
	return errors.Wrapf(exception.ErrInsufficientData, "%s needs %d, has %d", name, need, have)
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("sma", period, len(values))
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// SMASeries returns the rolling SMA, one value per full window.
func SMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out = append(out, sum/float64(period))
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out = append(out, sum/float64(period))
	}
	return out
}

// EMA seeds with the SMA of the first period values.
func EMA(values []float64, period int) (float64, error) {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0, insufficient("ema", period, len(values))
	}
	return series[len(series)-1], nil
}

func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*k + ema
		out = append(out, ema)
	}
	return out
}

// WMA weights the newest value by period and the oldest by 1.
func WMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("wma", period, len(values))
	}
	window := values[len(values)-period:]
	weighted, weights := 0.0, 0.0
	for i, v := range window {
		w := float64(i + 1)
		weighted += v * w
		weights += w
	}
	return weighted / weights, nil
}

// VWAP is the volume-weighted typical price, 0 when there is no volume.
func VWAP(candles []model.Candle) float64 {
	tpv, vol := 0.0, 0.0
	for _, c := range candles {
		tpv += c.TypicalPrice() * float64(c.Volume)
		vol += float64(c.Volume)
	}
	if vol == 0 {
		return 0
	}
	return tpv / vol
}

func VWAPSeries(candles []model.Candle) []float64 {
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, 0, len(candles))
	tpv, vol := 0.0, 0.0
	for _, c := range candles {
		tpv += c.TypicalPrice() * float64(c.Volume)
		vol += float64(c.Volume)
		if vol > 0 {
			out = append(out, tpv/vol)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// IsMAAligned reports whether the averages strictly descend, shortest first.
func IsMAAligned(averages ...float64) bool {
	if len(averages) < 2 {
		return false
	}
	for i := 0; i < len(averages)-1; i++ {
		if averages[i] <= averages[i+1] {
			return false
		}
	}
	return true
}
