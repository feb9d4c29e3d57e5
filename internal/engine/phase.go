package engine

// Phase is the branch an evaluation cycle took.
type Phase uint8

const (
	_phase_beg Phase = iota
	PhaseIdle
	PhaseHalted
	PhaseForceClose
	PhaseTrading
	_phase_end
)

func (p Phase) IsAvailable() bool {
	return p > _phase_beg && p < _phase_end
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseHalted:
		return "HALTED"
	case PhaseForceClose:
		return "FORCE_CLOSE"
	case PhaseTrading:
		return "TRADING"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Cycle reports one evaluation.
type Cycle struct {
	Phase   Phase `json:"phase"`
	Entries int   `json:"entries"`
	Exits   int   `json:"exits"`
}
