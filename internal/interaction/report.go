package interaction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/fitcoach/internal/tool"
)

// ExportText renders entries as a plain-text debug log, one section per
// entry in the given order.
func ExportText(entries []Entry, includeSuccessful bool, generated time.Time) string {
	var b strings.Builder

	scope := "failed interactions only"
	if includeSuccessful {
		scope = "all interactions"
	}
	fmt.Fprintf(&b, "=== AI Interaction Debug Log ===\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Entries: %d (%s)\n", len(entries), scope)

	for i, e := range entries {
		fmt.Fprintf(&b, "\n--- [%d] %s ---\n", i+1, e.ID)
		fmt.Fprintf(&b, "Time: %s\n", e.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Status: %s\n", status(e))
		fmt.Fprintf(&b, "User: %s\n", e.UserMessage)
		fmt.Fprintf(&b, "Response: %s\n", responseOrPlaceholder(e))
		if e.Error != nil {
			fmt.Fprintf(&b, "Error: %s\n", e.Error.Message)
		}
		for _, w := range e.Warnings {
			fmt.Fprintf(&b, "Warning: [%s] %s\n", w.Category, w.Message)
		}
		if len(e.ToolsUsed) > 0 {
			names := make([]string, 0, len(e.ToolsUsed))
			for _, rec := range e.ToolsUsed {
				mark := "ok"
				if !rec.Success {
					mark = "failed"
				}
				names = append(names, fmt.Sprintf("%s(%s)", rec.Name, mark))
			}
			fmt.Fprintf(&b, "Tools: %s\n", strings.Join(names, ", "))
		}
		fmt.Fprintf(&b, "Response time: %dms, attempts: %d\n",
			e.Metadata.ResponseTimeMs, e.Metadata.Attempts)
	}
	return b.String()
}

// BugReport renders everything needed to reproduce e by hand: the message,
// the response, the error, every tool call with its arguments and result,
// and the run metadata.
func BugReport(e Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Bug report %s\n\n", e.ID)
	fmt.Fprintf(&b, "Timestamp:      %s\n", e.Timestamp.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Status:         %s\n", status(e))
	fmt.Fprintf(&b, "Model:          %s\n", orNone(e.Metadata.Model))
	fmt.Fprintf(&b, "Response time:  %dms\n", e.Metadata.ResponseTimeMs)
	fmt.Fprintf(&b, "Attempts:       %d (retried %d)\n", e.Metadata.Attempts, e.Metadata.RetriedAttempts)
	fmt.Fprintf(&b, "Tool rounds:    %d", e.Metadata.ToolRounds)
	if e.Metadata.ToolRoundsExhausted {
		b.WriteString(" (limit reached)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Est. tokens:    %d\n", e.Metadata.EstimatedTokens)

	b.WriteString("\n## Context\n")
	fmt.Fprintf(&b, "User ID:        %s\n", orNone(e.Context.UserID))
	fmt.Fprintf(&b, "Screen:         %s\n", orNone(e.Context.Screen))
	fmt.Fprintf(&b, "History turns:  %d\n", e.Context.HistoryTurns)
	if len(e.Context.ProfileKeys) > 0 {
		fmt.Fprintf(&b, "Profile keys:   %s\n", strings.Join(e.Context.ProfileKeys, ", "))
	}

	b.WriteString("\n## User message\n")
	b.WriteString(e.UserMessage)
	b.WriteString("\n\n## Response\n")
	b.WriteString(responseOrPlaceholder(e))
	b.WriteString("\n")

	if e.Error != nil {
		b.WriteString("\n## Error\n")
		fmt.Fprintf(&b, "Category: %s\nMessage:  %s\n", e.Error.Category, e.Error.Message)
	}
	if len(e.Warnings) > 0 {
		b.WriteString("\n## Warnings\n")
		for _, w := range e.Warnings {
			fmt.Fprintf(&b, "- [%s] %s\n", w.Category, w.Message)
		}
	}

	fmt.Fprintf(&b, "\n## Tool calls (%d)\n", len(e.ToolsUsed))
	for i, rec := range e.ToolsUsed {
		writeToolRecord(&b, i+1, rec)
	}
	return b.String()
}

func writeToolRecord(b *strings.Builder, n int, rec tool.Record) {
	fmt.Fprintf(b, "\n### %d. %s\n", n, rec.Name)
	if rec.CallID != "" {
		fmt.Fprintf(b, "Call ID:  %s\n", rec.CallID)
	}
	fmt.Fprintf(b, "Success:  %t\n", rec.Success)
	fmt.Fprintf(b, "Duration: %dms\n", rec.ExecutionTimeMs)
	fmt.Fprintf(b, "Arguments:\n%s\n", indentJSON(rec.Arguments))
	if rec.Error != nil {
		fmt.Fprintf(b, "Error: [%s] %s\n", rec.Error.Category, rec.Error.Message)
	}
	if rec.Result != nil {
		fmt.Fprintf(b, "Result:\n%s\n", indentJSON(rec.Result))
	}
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return fmt.Sprintf("  %v", v)
	}
	return "  " + string(data)
}

func status(e Entry) string {
	if e.Success {
		return "SUCCESS"
	}
	if e.Error != nil {
		return "FAILED (" + string(e.Error.Category) + ")"
	}
	return "FAILED"
}

func responseOrPlaceholder(e Entry) string {
	if e.AIResponse == nil {
		return "(no response)"
	}
	if *e.AIResponse == "" {
		return "(empty response)"
	}
	return *e.AIResponse
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
