// Package interaction records one structured log entry per orchestrated
// conversation turn and derives statistics and human-readable reports from
// them.
//
// Entries live in a capacity-bounded [LogStore]: new entries are inserted at
// the head and the oldest entry is evicted from the tail once the store holds
// more than its capacity. The [Logger] serialises all writes so the capacity
// invariant holds under concurrent callers, and it never lets a storage
// failure escape to the caller.
package interaction

import (
	"time"

	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// MaxEntries is the default log capacity.
const MaxEntries = 100

// ContextSnapshot is the diagnostic subset of the caller context stored with
// an entry. Profile values are omitted; only their keys are kept.
type ContextSnapshot struct {
	UserID       string   `json:"userId,omitempty"`
	Screen       string   `json:"screen,omitempty"`
	HistoryTurns int      `json:"historyTurns"`
	ProfileKeys  []string `json:"profileKeys,omitempty"`
}

// Metadata describes how an entry was produced.
type Metadata struct {
	Model           string `json:"model,omitempty"`
	EstimatedTokens int    `json:"estimatedTokens"`
	ResponseTimeMs  int64  `json:"responseTimeMs"`

	// Attempts is the number of provider cycles made, retries included.
	Attempts int `json:"attempts"`

	// RetriedAttempts is Attempts-1 for any run that reached the provider.
	RetriedAttempts int `json:"retriedAttempts"`

	ToolRounds          int  `json:"toolRounds"`
	ToolRoundsExhausted bool `json:"toolRoundsExhausted,omitempty"`
}

// Entry is the single log record written for one orchestrator run.
type Entry struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	UserMessage string           `json:"userMessage"`
	AIResponse  *string          `json:"aiResponse"`
	ToolsUsed   []tool.Record    `json:"toolsUsed"`
	Context     ContextSnapshot  `json:"contextSnapshot"`
	Success     bool             `json:"success"`
	Error       *types.ErrorInfo `json:"error,omitempty"`

	// Warnings holds quality issues that did not fail the run.
	Warnings []types.ErrorInfo `json:"warnings,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Category returns the error category of a failed entry, or "" on success.
func (e Entry) Category() types.ErrorCategory {
	if e.Error == nil {
		return ""
	}
	return e.Error.Category
}

// Response returns the AI response text, or "" when none was produced.
func (e Entry) Response() string {
	if e.AIResponse == nil {
		return ""
	}
	return *e.AIResponse
}

// HasCategory reports whether e failed with c or carries c as a warning.
func (e Entry) HasCategory(c types.ErrorCategory) bool {
	if e.Category() == c {
		return true
	}
	for _, w := range e.Warnings {
		if w.Category == c {
			return true
		}
	}
	return false
}
