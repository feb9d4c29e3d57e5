package exception

import "github.com/yanun0323/errors"

var (
	ErrRiskInvalidBudget   = errors.New("risk: invalid budget config")
	ErrRiskUnknownPosition = errors.New("risk: unknown position")
)
