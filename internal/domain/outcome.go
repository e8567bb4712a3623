package domain

// UpdateOutcome is the result of a conditioned update. A mutation that
// matched zero rows because another actor already transitioned the record
// reports AlreadyResolved instead of failing, so callers can tell "done by
// someone else" apart from an actual error.
type UpdateOutcome int

const (
	OutcomeApplied UpdateOutcome = iota
	OutcomeAlreadyResolved
)

func (o UpdateOutcome) Applied() bool { return o == OutcomeApplied }
