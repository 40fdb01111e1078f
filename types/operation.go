package types

import "time"

// OperationResult is the uniform envelope every orchestrated operation
// returns. Callers check Success rather than relying on panics or sentinel
// errors for expected failure modes (timeout, not found).
type OperationResult struct {
	Success bool `json:"success"`
	// Data carries the operation's payload when Success is true. Use the
	// typed accessor diag.ResultDataAs to avoid manual assertions.
	Data any `json:"data,omitempty"`
	// Error carries the structured failure when Success is false.
	Error         *Error        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// OperationStats tracks counters for one named operation.
type OperationStats struct {
	Count        int64         `json:"count"`
	Failures     int64         `json:"failures"`
	AvgDuration  time.Duration `json:"avg_duration"`
	LastDuration time.Duration `json:"last_duration"`
}

// OperationRecord is one entry in the bounded operation history ring.
type OperationRecord struct {
	Operation string        `json:"operation"`
	Component Component     `json:"component"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// SystemStats is the engine's running counter snapshot.
type SystemStats struct {
	State                SystemState `json:"state"`
	TotalOperations      int64       `json:"total_operations"`
	SuccessfulOperations int64       `json:"successful_operations"`
	FailedOperations     int64       `json:"failed_operations"`
	// SuccessRate is successful/total in [0,1]; 1 when nothing ran yet.
	SuccessRate     float64                   `json:"success_rate"`
	Operations      map[string]OperationStats `json:"operations"`
	ComponentErrors map[Component]int64       `json:"component_errors"`
	Handles         HandleStats               `json:"handles"`
	Frames          FrameStats                `json:"frames"`
	Uptime          time.Duration             `json:"uptime"`
}

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// HealthReport is the outcome of a health check: healthy with no issues,
// warning with one or two, critical beyond that or before initialization.
type HealthReport struct {
	Status          string    `json:"status"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	CheckedAt       time.Time `json:"checked_at"`
}
