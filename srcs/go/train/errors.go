package train

import "fmt"

// TrainingStepError is a failure inside forward, backward or the optimizer
// step of one worker.
type TrainingStepError struct {
	Rank  int
	Step  int
	Cause error
}

func (e *TrainingStepError) Error() string {
	return fmt.Sprintf("training failed on rank %d at batch %d: %v", e.Rank, e.Step, e.Cause)
}

func (e *TrainingStepError) Unwrap() error { return e.Cause }
