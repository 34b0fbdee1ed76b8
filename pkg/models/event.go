package models

import (
	"encoding/json"
	"time"
)

// EventLevel is the severity of a scan event.
type EventLevel string

// Event severity levels.
const (
	EventLevelInfo    EventLevel = "info"
	EventLevelSuccess EventLevel = "success"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event types emitted by the pipeline runner. The stream also emits the
// transport-level "ready" and "end" frames which are never persisted.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeStepStarted     = "step.started"
	EventTypeStepCompleted   = "step.completed"
	EventTypeStepFailed      = "step.failed"
	EventTypeLogLine         = "log.line"
	EventTypeEvidenceItem    = "evidence.item"
	EventTypeArtifactPlan    = "artifact.plan"
	EventTypeAssessmentFinal = "assessment.final"
)

// IsTerminalEventType reports whether the event type closes a run.
func IsTerminalEventType(t string) bool {
	return t == EventTypeRunCompleted || t == EventTypeRunFailed
}

// ScanEvent is one immutable entry in a scan's append-only timeline.
// ID is globally monotonic; Seq is unique and contiguous within a scan.
type ScanEvent struct {
	ID      int64           `json:"id"`
	ScanID  string          `json:"scanId"`
	Seq     int             `json:"seq"`
	TS      time.Time       `json:"ts"`
	Level   EventLevel      `json:"level"`
	Type    string          `json:"type"`
	StepKey *string         `json:"stepKey,omitempty"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
