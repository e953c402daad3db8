package metrics

import "time"

// RunOutcome labels how a generation run ended
type RunOutcome string

const (
	OutcomeSuccess   RunOutcome = "success"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeCancelled RunOutcome = "cancelled"
)

// Recorder receives generation metrics. Implementations must be safe for concurrent use
// because batches may run in parallel.
type Recorder interface {
	IncBatch(strategy string)
	AddURLs(batch string, n int)
	IncFiles(compressed bool)
	IncCompressionFailure()
	ObserveRunDuration(d time.Duration, outcome RunOutcome)
	SetLastSuccess(t time.Time)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncBatch(string) {}
func (NoopRecorder) AddURLs(string, int) {}
func (NoopRecorder) IncFiles(bool) {}
func (NoopRecorder) IncCompressionFailure() {}
func (NoopRecorder) ObserveRunDuration(time.Duration, RunOutcome) {}
func (NoopRecorder) SetLastSuccess(time.Time) {}
