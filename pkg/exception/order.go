package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest    = errors.New("order: invalid request")
	ErrOrderUnsupportedType   = errors.New("order: unsupported type")
	ErrOrderRiskRejected      = errors.New("order: rejected by risk check")
	ErrOrderNotFound          = errors.New("order: not found")
	ErrOrderNotCancellable    = errors.New("order: not cancellable in current state")
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderPipelineStopped   = errors.New("order: pipeline stopped")
)
