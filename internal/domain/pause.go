package domain

// PauseGate selects one of the independent pausable operation gates.
type PauseGate uint8

const (
	GateCommit PauseGate = iota
	GateReveal
	GateSettle
	GateClaim
	GateWithdraw
	GateGlobal

	NumPauseGates = 6
)

func (g PauseGate) String() string {
	switch g {
	case GateCommit:
		return "commit"
	case GateReveal:
		return "reveal"
	case GateSettle:
		return "settle"
	case GateClaim:
		return "claim"
	case GateWithdraw:
		return "withdraw"
	case GateGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// ParsePauseGate maps a gate name to its PauseGate value.
func ParsePauseGate(name string) (PauseGate, bool) {
	switch name {
	case "commit":
		return GateCommit, true
	case "reveal":
		return GateReveal, true
	case "settle":
		return GateSettle, true
	case "claim":
		return GateClaim, true
	case "withdraw":
		return GateWithdraw, true
	case "global":
		return GateGlobal, true
	default:
		return 0, false
	}
}
