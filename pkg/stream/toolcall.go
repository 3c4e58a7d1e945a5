package stream

import (
	"encoding/json"
	"time"
)

// Status tracks a tool call's execution lifecycle. Transitions only move
// forward: pending -> confirmed/rejected -> completed/error.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// statusRank orders statuses for forward-only transitions.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed, StatusRejected:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return 0
	}
}

// Source records which channel first established a tool call.
type Source string

const (
	SourceAIMessage   Source = "ai-message"
	SourceDeltaStream Source = "delta-stream"
	SourceInterrupt   Source = "interrupt"
	SourceUpdateEvent Source = "update-event"
)

// ToolCall is one reconciled, user-visible tool invocation. Name and Args
// are never overwritten by a later partial or empty value; only Status and
// Content change after creation, except an explicit edit decision which
// replaces Args.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	Status    Status         `json:"status"`
	Content   string         `json:"content,omitempty"`
	Source    Source         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// canonicalArgs returns a canonical JSON encoding for structural equality
// checks. encoding/json sorts map keys, so JSON-equal argument objects
// produce identical strings.
func canonicalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// sameCall reports structural identity for calls without a shared id:
// identical name and JSON-equal arguments mean the same logical call.
func sameCall(a, b *ToolCall) bool {
	return a.Name != "" && a.Name == b.Name && canonicalArgs(a.Args) == canonicalArgs(b.Args)
}
