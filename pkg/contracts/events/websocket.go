// Package events contains the live update and messaging event contracts of
// the BMI dashboard.
package events

import (
	"time"

	"bmidash/pkg/contracts/domain"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeSummaryUpdate carries the recomputed tables after a selection change
	MessageTypeSummaryUpdate MessageType = "summary:update"

	// MessageTypeSystemStatus reports bootstrap progress
	MessageTypeSystemStatus MessageType = "system:status"

	// MessageTypeConnection greets a newly registered client
	MessageTypeConnection MessageType = "connection"

	MessageTypeError MessageType = "error"
)

// Bootstrap phases reported through system:status and /api/health/ready
const (
	PhaseStarting  = "starting"
	PhaseLoading   = "loading datasets"
	PhaseComputing = "computing summaries"
	PhaseReady     = "ready"
	PhaseFailed    = "failed"
)

// Message is the envelope of every WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// NewMessage wraps data in an envelope stamped with the current time
func NewMessage(t MessageType, data interface{}, traceID string) Message {
	return Message{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	}
}

// SummaryUpdate is the payload of summary:update
type SummaryUpdate struct {
	Selection  domain.Selection                           `json:"selection"`
	Summaries  map[domain.DatasetKind]domain.SummaryTable `json:"summaries"`
	ComputedAt time.Time                                  `json:"computed_at"`
}

// SystemStatus is the payload of system:status
type SystemStatus struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
	Ready   bool   `json:"ready"`
}

// ConnectionInfo is the payload of the connection greeting
type ConnectionInfo struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
}

// SelectionChanged is published to the message broker whenever the shared
// selection changes
type SelectionChanged struct {
	ID         string                     `json:"id"`
	Previous   domain.Selection           `json:"previous"`
	Current    domain.Selection           `json:"current"`
	Rows       map[domain.DatasetKind]int `json:"rows"`
	OccurredAt time.Time                  `json:"occurred_at"`
	TraceID    string                     `json:"trace_id,omitempty"`
}
