package utils

import "fmt"

// SamplingError means metric collection failed for one target. The
// monitoring loop logs it, skips the target for that tick, and continues.
type SamplingError struct {
	TargetName string
	Err        error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sampling %s: %v", e.TargetName, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }

// StorageError means a repository operation failed. The operation is
// abandoned without automatic retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ExecutionError means a remediation command failed against the control
// plane. It is captured into the agent action's result notes.
type ExecutionError struct {
	Action string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Action, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
