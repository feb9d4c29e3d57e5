package strategy

import (
	"fmt"
	"sync"

	"autotrader/internal/indicator"
	"autotrader/internal/model"
	"autotrader/internal/session"
)

const GapPullbackName = "GapPullback"

// GapPullback buys the first pullback off the morning high of a stock that
// gapped up at the open.
type GapPullback struct {
	base

	mu          sync.Mutex
	morningHigh map[string]float64
	pulledBack  map[string]bool
}

func NewGapPullback(sess *session.Session) *GapPullback {
	s := &GapPullback{
		morningHigh: make(map[string]float64),
		pulledBack:  make(map[string]bool),
	}
	s.init(GapPullbackName, sess, map[string]float64{
		"minGapPercent":      1.5,
		"maxGapPercent":      5.0,
		"pullbackMin":        0.5,
		"pullbackMax":        1.5,
		"volumeMultiple":     2.0,
		"takeProfitPercent":  2.0,
		"stopLossPercent":    1.0,
		"entryWindowMinutes": 15,
		"confidence":         0.7,
	})
	return s
}

func (s *GapPullback) Analyze(symbol string, candles []model.Candle, quote model.Quote) model.SignalInfo {
	none := model.NoSignal(symbol)
	if !s.Enabled() || len(candles) == 0 {
		return none
	}
	p := s.Parameters()
	if !s.session.InEntryWindow(int(p["entryWindowMinutes"])) {
		return none
	}

	prevClose := quote.PrevClose
	if prevClose <= 0 {
		prevClose = candles[0].Open
	}
	if prevClose <= 0 {
		return none
	}
	gap := (quote.OpenPrice - prevClose) / prevClose * 100
	if gap < p["minGapPercent"] || gap > p["maxGapPercent"] {
		return none
	}

	price := quote.CurrentPrice
	high, armed := s.trackHigh(symbol, price)
	if !armed || high <= 0 {
		return none
	}
	pullback := (high - price) / high * 100
	if pullback < p["pullbackMin"] || pullback > p["pullbackMax"] {
		return none
	}
	if !gapVolumeSurge(candles, p["volumeMultiple"]) {
		return none
	}
	if price <= indicator.VWAP(candles) {
		return none
	}

	s.mu.Lock()
	s.pulledBack[symbol] = true
	s.mu.Unlock()

	sig := buySignal(s.name, symbol, price, p["confidence"],
		fmt.Sprintf("gap %.2f%%, pullback %.2f%% from high %.0f", gap, pullback, high))
	sig.StopLoss = price * (1 - p["stopLossPercent"]/100)
	sig.TakeProfit1 = price * (1 + p["takeProfitPercent"]/100)
	return sig
}

// trackHigh records the morning high and reports whether the current leg
// may still produce an entry. A new high re-arms the symbol.
func (s *GapPullback) trackHigh(symbol string, price float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	high, ok := s.morningHigh[symbol]
	if !ok || price > high {
		s.morningHigh[symbol] = price
		s.pulledBack[symbol] = false
		high = price
	}
	return high, !s.pulledBack[symbol]
}

// MorningHigh returns the tracked high for the symbol.
func (s *GapPullback) MorningHigh(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.morningHigh[symbol]
	return h, ok
}

func (s *GapPullback) ShouldClose(pos model.Position, quote model.Quote) bool {
	return s.exitHit(pos, quote)
}

func (s *GapPullback) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.morningHigh = make(map[string]float64)
	s.pulledBack = make(map[string]bool)
}

// gapVolumeSurge compares the mean of the last five bars to the mean of the
// fifteen before them.
func gapVolumeSurge(candles []model.Candle, multiple float64) bool {
	if len(candles) < 20 {
		return false
	}
	n := len(candles)
	var recent, prior int64
	for _, c := range candles[n-5:] {
		recent += c.Volume
	}
	for _, c := range candles[n-20 : n-5] {
		prior += c.Volume
	}
	priorAvg := float64(prior) / 15
	if priorAvg <= 0 {
		return true
	}
	return float64(recent)/5 >= priorAvg*multiple
}
