package strategy

import (
	"fmt"
	"math"

	"autotrader/internal/indicator"
	"autotrader/internal/model"
	"autotrader/internal/session"
)

const BBSqueezeName = "BBSqueeze"

// BBSqueeze waits for Bollinger bandwidth to compress into the bottom of its
// recent range and buys the upside expansion.
type BBSqueeze struct {
	base
}

func NewBBSqueeze(sess *session.Session) *BBSqueeze {
	s := &BBSqueeze{}
	s.init(BBSqueezeName, sess, map[string]float64{
		"bbPeriod":          20,
		"bbStdDev":          2.0,
		"squeezeLookback":   50,
		"squeezePercentile": 0.2,
		"volumeMultiple":    1.5,
		"rsiMin":            55,
		"rsiMax":            75,
		"stopLossPercent":   1.5,
		"confidence":        0.62,
	})
	return s
}

func (s *BBSqueeze) Analyze(symbol string, candles []model.Candle, quote model.Quote) model.SignalInfo {
	none := model.NoSignal(symbol)
	if !s.Enabled() {
		return none
	}
	p := s.Parameters()
	period, lookback := int(p["bbPeriod"]), int(p["squeezeLookback"])
	if period <= 0 || lookback <= 0 || len(candles) < lookback {
		return none
	}

	closes := indicator.Closes(candles)
	bands := indicator.BollingerSeries(closes, period, p["bbStdDev"])
	if len(bands) < lookback {
		return none
	}
	if !indicator.IsBollingerSqueeze(bands, lookback, p["squeezePercentile"]) {
		return none
	}
	last := bands[len(bands)-1]
	price := quote.CurrentPrice
	if price <= last.Upper {
		return none
	}
	if !lastVolumeAbove(candles, 19, p["volumeMultiple"]) {
		return none
	}
	rsi, err := indicator.RSI(closes, 14)
	if err != nil || rsi < p["rsiMin"] || rsi > p["rsiMax"] {
		return none
	}

	atr, _ := indicator.ATR(candles, 14)
	sig := buySignal(s.name, symbol, price, p["confidence"],
		fmt.Sprintf("squeeze breakout over %.0f, bandwidth %.4f", last.Upper, last.Bandwidth))
	sig.StopLoss = math.Max(last.Middle, price*(1-p["stopLossPercent"]/100))
	sig.TakeProfit1 = last.Upper + atr
	return sig
}

func (s *BBSqueeze) ShouldClose(pos model.Position, quote model.Quote) bool {
	return s.exitHit(pos, quote)
}
