package exception

import "github.com/yanun0323/errors"

var (
	ErrStrategyDuplicate        = errors.New("strategy: already registered")
	ErrStrategyUnknown          = errors.New("strategy: not registered")
	ErrStrategyUnknownParameter = errors.New("strategy: unknown parameter")
)
