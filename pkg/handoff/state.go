package handoff

// State is a step of the handoff protocol:
// NoFile → BatchWritten → Launched → ResultsWritten → Consumed → NoFile.
type State int

const (
	StateNoFile State = iota
	StateBatchWritten
	StateLaunched
	StateResultsWritten
	StateConsumed
)

// String returns the state name used in logs and errors.
func (s State) String() string {
	switch s {
	case StateNoFile:
		return "no_file"
	case StateBatchWritten:
		return "batch_written"
	case StateLaunched:
		return "launched"
	case StateResultsWritten:
		return "results_written"
	case StateConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}
