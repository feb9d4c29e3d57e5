package history

import (
	"context"

	"github.com/yanun0323/errors"

	"autotrader/internal/broker"
	"autotrader/internal/model"
	"autotrader/pkg/exception"
)

// Source serves historical candles, oldest first.
type Source interface {
	MinuteCandles(ctx context.Context, symbol string, interval int, count int) ([]model.Candle, error)
	DailyCandles(ctx context.Context, symbol string, count int) ([]model.Candle, error)
}

// BrokerSource reads history through the brokerage port.
type BrokerSource struct {
	port broker.Port
}

func NewBrokerSource(port broker.Port) *BrokerSource {
	return &BrokerSource{port: port}
}

func (s *BrokerSource) MinuteCandles(ctx context.Context, symbol string, interval int, count int) ([]model.Candle, error) {
	if err := s.check(symbol, count); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, errors.Wrapf(exception.ErrUnsupportedInterval, "interval %d", interval)
	}
	candles, err := s.port.MinuteCandles(ctx, symbol, interval, count)
	if err != nil {
		return nil, errors.Wrapf(err, "minute candles %s", symbol)
	}
	return candles, nil
}

func (s *BrokerSource) DailyCandles(ctx context.Context, symbol string, count int) ([]model.Candle, error) {
	if err := s.check(symbol, count); err != nil {
		return nil, err
	}
	candles, err := s.port.DailyCandles(ctx, symbol, count)
	if err != nil {
		return nil, errors.Wrapf(err, "daily candles %s", symbol)
	}
	return candles, nil
}

func (s *BrokerSource) check(symbol string, count int) error {
	if s.port == nil {
		return exception.ErrNilCandleSource
	}
	if symbol == "" || count <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "symbol %q, count %d", symbol, count)
	}
	return nil
}
