package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

// Config overrides one strategy's enabled flag and parameters.
type Config struct {
	Enabled *bool              `json:"enabled,omitempty"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// Status is a read-only view for the dashboard.
type Status struct {
	Name       string             `json:"name"`
	Enabled    bool               `json:"enabled"`
	Parameters map[string]float64 `json:"parameters"`
}

// Pipeline holds registered strategies in registration order.
type Pipeline struct {
	mu         sync.RWMutex
	strategies []Strategy
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// NewDefaultPipeline registers the three built-in strategies.
func NewDefaultPipeline(sess *session.Session) *Pipeline {
	p := NewPipeline()
	_ = p.Register(NewGapPullback(sess))
	_ = p.Register(NewMABreakout(sess))
	_ = p.Register(NewBBSqueeze(sess))
	return p
}

func (p *Pipeline) Register(s Strategy) error {
	if s == nil {
		return errors.Wrap(exception.ErrNilInstance, "register strategy")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.strategies {
		if existing.Name() == s.Name() {
			return errors.Wrap(exception.ErrStrategyDuplicate, s.Name())
		}
	}
	p.strategies = append(p.strategies, s)
	return nil
}

func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.strategies {
		if s.Name() == name {
			p.strategies = append(p.strategies[:i], p.strategies[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pipeline) Get(name string) (Strategy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

func (p *Pipeline) Strategies() []Strategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Strategy, len(p.strategies))
	copy(out, p.strategies)
	return out
}

func (p *Pipeline) Status() []Status {
	list := p.Strategies()
	out := make([]Status, 0, len(list))
	for _, s := range list {
		out = append(out, Status{Name: s.Name(), Enabled: s.Enabled(), Parameters: s.Parameters()})
	}
	return out
}

func (p *Pipeline) SetEnabled(name string, enabled bool) error {
	s, ok := p.Get(name)
	if !ok {
		return errors.Wrap(exception.ErrStrategyUnknown, name)
	}
	s.SetEnabled(enabled)
	logs.Infof("strategy %s enabled=%t", name, enabled)
	return nil
}

// Apply pushes configured overrides onto registered strategies.
func (p *Pipeline) Apply(cfg map[string]Config) error {
	for name, c := range cfg {
		s, ok := p.Get(name)
		if !ok {
			return errors.Wrap(exception.ErrStrategyUnknown, name)
		}
		if c.Enabled != nil {
			s.SetEnabled(*c.Enabled)
		}
		for k, v := range c.Params {
			if err := s.SetParameter(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnalyzeAll runs every enabled strategy on the symbol and returns the
// actionable signals by descending confidence. Ties keep registration order.
// A panicking strategy is logged and skipped.
func (p *Pipeline) AnalyzeAll(symbol string, candles []model.Candle, quote model.Quote) []model.SignalInfo {
	var out []model.SignalInfo
	for _, s := range p.Strategies() {
		if !s.Enabled() {
			continue
		}
		sig, ok := safeAnalyze(s, symbol, candles, quote)
		if !ok || !sig.Signal.IsActionable() {
			continue
		}
		sig.Symbol = symbol
		sig.Strategy = s.Name()
		out = append(out, sig)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func safeAnalyze(s Strategy, symbol string, candles []model.Candle, quote model.Quote) (sig model.SignalInfo, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("strategy %s panicked on %s: %v", s.Name(), symbol, r)
			ok = false
		}
	}()
	return s.Analyze(symbol, candles, quote), true
}

// CheckCloseConditions asks each enabled strategy whether an open position
// should be closed. The first strategy to say yes wins for that position.
// Positions without a quote are skipped.
func (p *Pipeline) CheckCloseConditions(positions []model.Position, quotes map[string]model.Quote) []model.SignalInfo {
	list := p.Strategies()
	var out []model.SignalInfo
	for _, pos := range positions {
		quote, ok := quotes[pos.Symbol]
		if !ok {
			continue
		}
		for _, s := range list {
			if !s.Enabled() || !safeShouldClose(s, pos, quote) {
				continue
			}
			out = append(out, model.SignalInfo{
				Signal:     enum.SignalCloseLong,
				Symbol:     pos.Symbol,
				Price:      quote.CurrentPrice,
				Quantity:   pos.Quantity,
				Confidence: 1,
				Reason:     fmt.Sprintf("close condition from %s", s.Name()),
				Strategy:   s.Name(),
			})
			break
		}
	}
	return out
}

func safeShouldClose(s Strategy, pos model.Position, quote model.Quote) (hit bool) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("strategy %s panicked checking %s: %v", s.Name(), pos.Symbol, r)
			hit = false
		}
	}()
	return s.ShouldClose(pos, quote)
}

// ResetDaily clears per-day strategy state.
func (p *Pipeline) ResetDaily() {
	for _, s := range p.Strategies() {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}
