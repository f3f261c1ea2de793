package ingestion

import (
	"time"

	"LendLedger/internal/event"
)

// Submission is a decoded command waiting for the core loop. Done, when
// set, is called once with the outcome.
type Submission struct {
	Command  event.Command
	Source   string
	Received time.Time
	Done     func(SubmitResult)
}

// SubmitResult is the core's verdict on a submission. Duplicate is set when
// the command had already been applied and nothing changed.
type SubmitResult struct {
	Sequence  int64
	StateHash [32]byte
	Duplicate bool
	Err       error
}

// Complete reports res to the submitter, if it is listening.
func (s Submission) Complete(res SubmitResult) {
	if s.Done != nil {
		s.Done(res)
	}
}
