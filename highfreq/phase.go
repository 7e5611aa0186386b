package highfreq

import "fmt"

// Phase is a state of one analysis run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseAggregating
	PhaseFlagging
	PhasePersisted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseAggregating:
		return "aggregating"
	case PhaseFlagging:
		return "flagging"
	case PhasePersisted:
		return "persisted"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
