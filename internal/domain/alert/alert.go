// Package alert defines the Alert domain entity.
package alert

import "time"

// Level classifies alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Alert is a component-scoped notable condition surfaced to operators.
// Aggregated and retained by the supervisor; garbage-collected after the
// retention window once acknowledged.
type Alert struct {
	ID             string         `json:"id"`
	Level          Level          `json:"level"`
	Component      string         `json:"component"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Acknowledged   bool           `json:"acknowledged"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}
