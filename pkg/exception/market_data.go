package exception

import "github.com/yanun0323/errors"

var (
	ErrInsufficientData    = errors.New("market data: insufficient data")
	ErrUnknownSymbol       = errors.New("market data: unknown symbol")
	ErrUnsupportedInterval = errors.New("market data: unsupported interval")
	ErrNilCandleSource     = errors.New("market data: nil candle source")
	ErrMalformedCandleRow  = errors.New("market data: malformed candle row")
)
