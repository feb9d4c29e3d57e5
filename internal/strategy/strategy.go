package strategy

import (
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/risk"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

// Strategy evaluates entries and exits for one rule set. Implementations
// keep their own per-symbol state and must be safe for concurrent use.
type Strategy interface {
	Name() string
	Analyze(symbol string, candles []model.Candle, quote model.Quote) model.SignalInfo
	ShouldClose(pos model.Position, quote model.Quote) bool
	Parameter(name string) (float64, bool)
	SetParameter(name string, value float64) error
	Parameters() map[string]float64
	Enabled() bool
	SetEnabled(enabled bool)
}

// Resetter is implemented by strategies with per-day state.
type Resetter interface {
	Reset()
}

// base carries the name, enabled flag and a fixed parameter set.
type base struct {
	name    string
	session *session.Session
	enabled atomic.Bool

	paramMu sync.RWMutex
	params  map[string]float64
}

func (b *base) init(name string, sess *session.Session, defaults map[string]float64) {
	if sess == nil {
		sess = session.New(session.DefaultConfig(), nil)
	}
	b.name, b.session, b.params = name, sess, defaults
	b.enabled.Store(true)
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Enabled() bool {
	return b.enabled.Load()
}

func (b *base) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

func (b *base) Parameter(name string) (float64, bool) {
	b.paramMu.RLock()
	defer b.paramMu.RUnlock()
	v, ok := b.params[name]
	return v, ok
}

// SetParameter only accepts names the strategy declared.
func (b *base) SetParameter(name string, value float64) error {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	if _, ok := b.params[name]; !ok {
		return errors.Wrapf(exception.ErrStrategyUnknownParameter, "%s.%s", b.name, name)
	}
	b.params[name] = value
	return nil
}

func (b *base) Parameters() map[string]float64 {
	b.paramMu.RLock()
	defer b.paramMu.RUnlock()
	out := make(map[string]float64, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// exitHit is the stop, take-profit tier or liquidation-window test every
// strategy shares.
func (b *base) exitHit(pos model.Position, quote model.Quote) bool {
	price := quote.CurrentPrice
	return risk.StopLossHit(pos, price) ||
		risk.TakeProfit1Hit(pos, price) ||
		risk.TakeProfit2Hit(pos, price) ||
		b.session.IsForceCloseWindow()
}

func buySignal(name, symbol string, price, confidence float64, reason string) model.SignalInfo {
	return model.SignalInfo{
		Signal:     enum.SignalBuy,
		Symbol:     symbol,
		Price:      price,
		Confidence: confidence,
		Reason:     reason,
		Strategy:   name,
	}
}

// lastVolumeAbove compares the last volume to the mean of the window
// before it. A window without volume passes.
func lastVolumeAbove(candles []model.Candle, window int, multiple float64) bool {
	if len(candles) < window+1 {
		return true
	}
	prev := candles[len(candles)-1-window : len(candles)-1]
	var sum int64
	for _, c := range prev {
		sum += c.Volume
	}
	avg := float64(sum) / float64(window)
	if avg <= 0 {
		return true
	}
	return float64(candles[len(candles)-1].Volume) >= avg*multiple
}
