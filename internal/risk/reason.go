package risk

// Reason explains an admission decision.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonInvalidInput
	ReasonDailyLoss
	ReasonMaxPositions
	ReasonDuplicate
	ReasonPositionSize
	ReasonBudget
	reasonEnd
)

// ReasonCount sizes per-reason counters.
const ReasonCount = int(reasonEnd)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidInput:
		return "invalid_input"
	case ReasonDailyLoss:
		return "daily_loss_limit"
	case ReasonMaxPositions:
		return "max_concurrent_positions"
	case ReasonDuplicate:
		return "position_exists"
	case ReasonPositionSize:
		return "max_position_size"
	case ReasonBudget:
		return "daily_budget"
	default:
		return "unknown"
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision is the outcome of an admission check.
type Decision struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Notional float64 `json:"notional"`
	Allowed  bool    `json:"allowed"`
	Reason   Reason  `json:"reason"`
}
