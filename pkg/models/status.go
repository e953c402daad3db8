package models

// BatchStrategy records which path the orchestrator took for a batch
type BatchStrategy string

const (
	BatchStrategyUnset   BatchStrategy = ""        // Zero value = not processed
	BatchStrategySkipped BatchStrategy = "skipped" // First page was empty, nothing emitted
	BatchStrategySingle  BatchStrategy = "single"  // One urlset file at the output root
	BatchStrategyMulti   BatchStrategy = "multi"   // Paged files plus a sub-index in a batch folder
)

// String implements fmt.Stringer for logging
func (s BatchStrategy) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the strategy is a known value
func (s BatchStrategy) IsValid() bool {
	switch s {
	case BatchStrategySkipped, BatchStrategySingle, BatchStrategyMulti:
		return true
	}
	return false
}

// RunStatus represents the final state of a generation run
type RunStatus string

const (
	RunStatusUnset     RunStatus = ""
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailure   RunStatus = "failure"
	RunStatusCancelled RunStatus = "cancelled"
)

// String implements fmt.Stringer for logging
func (s RunStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known terminal value
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusCancelled:
		return true
	}
	return false
}
