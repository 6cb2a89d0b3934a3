package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of an execution.
type RunStatus string

const (
	// RunStatusRunning indicates the run is executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every action succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run aborted or no action succeeded.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some actions failed while others succeeded.
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusPartial
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// ActionStatus is the outcome label of one action, used for metrics.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

// Status returns the outcome label of the record.
func (r ActionRecord) Status() ActionStatus {
	if r.Failed() {
		return ActionFailed
	}
	return ActionSucceeded
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeApply:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid execution mode: %q", s)
	}
}
