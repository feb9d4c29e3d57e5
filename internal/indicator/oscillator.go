package indicator

// RSI uses Wilder smoothing. A window without losses yields 100.
func RSI(values []float64, period int) (float64, error) {
	series := RSISeries(values, period)
	if len(series) == 0 {
		return 0, insufficient("rsi", period+1, len(values))
	}
	return series[len(series)-1], nil
}

func RSISeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}
	gains := make([]float64, len(values)-1)
	losses := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	out := make([]float64, 0, len(gains)-period+1)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

type MACDResult struct {
	MACD         float64 `json:"macd"`
	Signal       float64 `json:"signal"`
	Histogram    float64 `json:"histogram"`
	BullishCross bool    `json:"bullishCross"`
	BearishCross bool    `json:"bearishCross"`
}

// MACD computes the standard fast/slow/signal construction over closes.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	series := MACDSeries(values, fast, slow, signal)
	if len(series) == 0 {
		return MACDResult{}, insufficient("macd", slow+signal-1, len(values))
	}
	return series[len(series)-1], nil
}

// DefaultMACD is MACD(12, 26, 9).
func DefaultMACD(values []float64) (MACDResult, error) {
	return MACD(values, 12, 26, 9)
}

func MACDSeries(values []float64, fast, slow, signal int) []MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(values) < slow {
		return nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sig := EMASeries(line, signal)
	if len(sig) == 0 {
		return nil
	}

	out := make([]MACDResult, len(sig))
	for i := range sig {
		idx := i + signal - 1
		r := MACDResult{
			MACD:   line[idx],
			Signal: sig[i],
		}
		r.Histogram = r.MACD - r.Signal
		if i > 0 {
			prevMACD, prevSig := line[idx-1], sig[i-1]
			r.BullishCross = prevMACD < prevSig && r.MACD > r.Signal
			r.BearishCross = prevMACD > prevSig && r.MACD < r.Signal
		}
		out[i] = r
	}
	return out
}

type StochasticResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}
