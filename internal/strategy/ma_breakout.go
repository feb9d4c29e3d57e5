package strategy

import (
	"fmt"

	"autotrader/internal/indicator"
	"autotrader/internal/model"
	"autotrader/internal/session"
)

const MABreakoutName = "MABreakout"

// MABreakout enters when short, mid and long averages align and price
// breaks above the long one on volume with momentum confirmation.
type MABreakout struct {
	base
}

func NewMABreakout(sess *session.Session) *MABreakout {
	s := &MABreakout{}
	s.init(MABreakoutName, sess, map[string]float64{
		"fastMA":             5,
		"midMA":              10,
		"slowMA":             20,
		"volumeMultiple":     3.0,
		"rsiMin":             50,
		"rsiMax":             70,
		"takeProfit1Percent": 1.5,
		"takeProfit2Percent": 3.0,
		"stopLossPercent":    1.2,
		"confidence":         0.58,
	})
	return s
}

func (s *MABreakout) Analyze(symbol string, candles []model.Candle, quote model.Quote) model.SignalInfo {
	none := model.NoSignal(symbol)
	if !s.Enabled() {
		return none
	}
	p := s.Parameters()
	fast, mid, slow := int(p["fastMA"]), int(p["midMA"]), int(p["slowMA"])
	if fast <= 0 || mid <= 0 || slow <= 0 || len(candles) < slow+5 {
		return none
	}

	closes := indicator.Closes(candles)
	fastSeries := indicator.SMASeries(closes, fast)
	midSeries := indicator.SMASeries(closes, mid)
	slowSeries := indicator.SMASeries(closes, slow)
	if len(fastSeries) == 0 || len(midSeries) == 0 || len(slowSeries) < 2 {
		return none
	}
	fastMA := fastSeries[len(fastSeries)-1]
	midMA := midSeries[len(midSeries)-1]
	slowMA := slowSeries[len(slowSeries)-1]
	if !indicator.IsMAAligned(fastMA, midMA, slowMA) {
		return none
	}

	price := quote.CurrentPrice
	if price <= slowMA {
		return none
	}
	if !lastVolumeAbove(candles, 19, p["volumeMultiple"]) {
		return none
	}
	rsi, err := indicator.RSI(closes, 14)
	if err != nil || rsi < p["rsiMin"] || rsi > p["rsiMax"] {
		return none
	}
	macd, err := indicator.DefaultMACD(closes)
	if err != nil || !(macd.BullishCross || (macd.MACD > 0 && macd.Histogram > 0)) {
		return none
	}

	sig := buySignal(s.name, symbol, price, p["confidence"],
		fmt.Sprintf("ma aligned %.0f>%.0f>%.0f, rsi %.1f", fastMA, midMA, slowMA, rsi))
	sig.StopLoss = price * (1 - p["stopLossPercent"]/100)
	sig.TakeProfit1 = price * (1 + p["takeProfit1Percent"]/100)
	sig.TakeProfit2 = price * (1 + p["takeProfit2Percent"]/100)
	return sig
}

func (s *MABreakout) ShouldClose(pos model.Position, quote model.Quote) bool {
	return s.exitHit(pos, quote)
}
