package solver

// Status is the lifecycle state of a solve. A fresh run starts Initialized,
// moves to Iterating once Newton steps are taken, and terminates in exactly
// one of Converged, Diverged or MaxIterationsExceeded.
type Status uint8

const (
	Initialized Status = iota
	Iterating
	Converged
	Diverged
	MaxIterationsExceeded
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case MaxIterationsExceeded:
		return "max iterations exceeded"
	default:
		return "unknown"
	}
}
