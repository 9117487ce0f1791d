package interaction

import (
	"math"

	"github.com/MrWong99/fitcoach/pkg/types"
)

// Statistics summarises a snapshot of the log. It is always computed from
// the entries themselves; nothing is cached between calls.
type Statistics struct {
	TotalInteractions      int                         `json:"totalInteractions"`
	SuccessfulInteractions int                         `json:"successfulInteractions"`
	FailedInteractions     int                         `json:"failedInteractions"`
	SuccessRate            float64                     `json:"successRate"`
	ErrorsByCategory       map[types.ErrorCategory]int `json:"errorsByCategory"`
	WarningsByCategory     map[types.ErrorCategory]int `json:"warningsByCategory"`
	ToolUsageCount         map[string]int              `json:"toolUsageCount"`
	ToolFailureCount       map[string]int              `json:"toolFailureCount"`

	// AvgResponseLength averages response text length over entries that
	// produced a response.
	AvgResponseLength float64 `json:"avgResponseLength"`
	AvgToolsUsed      float64 `json:"avgToolsUsed"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// Compute derives Statistics from entries. Rates and averages are rounded to
// one decimal place; an empty input yields zeros.
func Compute(entries []Entry) Statistics {
	st := Statistics{
		TotalInteractions:  len(entries),
		ErrorsByCategory:   map[types.ErrorCategory]int{},
		WarningsByCategory: map[types.ErrorCategory]int{},
		ToolUsageCount:     map[string]int{},
		ToolFailureCount:   map[string]int{},
	}
	if len(entries) == 0 {
		return st
	}

	var (
		responseChars, responses int
		tools                    int
		responseMs               int64
	)
	for _, e := range entries {
		if e.Success {
			st.SuccessfulInteractions++
		} else {
			st.FailedInteractions++
			if c := e.Category(); c != "" {
				st.ErrorsByCategory[c]++
			}
		}
		for _, w := range e.Warnings {
			st.WarningsByCategory[w.Category]++
		}
		for _, rec := range e.ToolsUsed {
			st.ToolUsageCount[rec.Name]++
			if !rec.Success {
				st.ToolFailureCount[rec.Name]++
			}
		}
		if e.AIResponse != nil {
			responseChars += len([]rune(*e.AIResponse))
			responses++
		}
		tools += len(e.ToolsUsed)
		responseMs += e.Metadata.ResponseTimeMs
	}

	n := float64(len(entries))
	st.SuccessRate = round1(float64(st.SuccessfulInteractions) / n * 100)
	if responses > 0 {
		st.AvgResponseLength = round1(float64(responseChars) / float64(responses))
	}
	st.AvgToolsUsed = round1(float64(tools) / n)
	st.AvgResponseTimeMs = round1(float64(responseMs) / n)
	return st
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
