package train

import "time"

// Stats accumulates one training pass of one worker.
type Stats struct {
	TotalLoss                 float64
	WordCounter               int64
	TotalTokens               int64
	TotalTokensPerLogInterval int64
	TotalElapsed              time.Duration

	IntervalSteps   int
	IntervalElapsed time.Duration
}

func (s *Stats) add(m StepMetrics) {
	s.TotalLoss += m.Loss
	s.WordCounter += int64(m.Targets)
	s.TotalTokens += int64(m.Tokens)
	s.TotalTokensPerLogInterval += int64(m.Tokens)
	s.TotalElapsed += m.Elapsed
	s.IntervalSteps++
	s.IntervalElapsed += m.Elapsed
}

// AvgLoss is the mean loss of the current interval.
func (s *Stats) AvgLoss() float64 {
	if s.IntervalSteps == 0 {
		return 0
	}
	return s.TotalLoss / float64(s.IntervalSteps)
}

func (s *Stats) resetInterval() {
	s.TotalLoss = 0
	s.TotalTokensPerLogInterval = 0
	s.IntervalSteps = 0
	s.IntervalElapsed = 0
}
