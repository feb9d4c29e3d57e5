package marketdata

import (
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
)

// Resample merges ascending candles into the wider resolution buckets.
func Resample(candles []model.Candle, resolution enum.Resolution) []model.Candle {
	var out []model.Candle
	for _, c := range candles {
		slot := resolution.Slot(c.Timestamp)
		if n := len(out); n > 0 && out[n-1].Timestamp == slot {
			last := &out[n-1]
			if c.High > last.High {
				last.High = c.High
			}
			if c.Low < last.Low {
				last.Low = c.Low
			}
			last.Close = c.Close
			last.Volume += c.Volume
			continue
		}
		c.Timestamp = slot
		out = append(out, c)
	}
	return out
}
