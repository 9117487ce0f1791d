package stress

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/fitcoach/pkg/types"
)

// Warning kinds.
const (
	WarningSlow    = "slow"
	WarningVerbose = "verbose"
)

// reportTopN is the number of slowest and fastest queries in a report.
const reportTopN = 10

// Failure is one failed question.
type Failure struct {
	Category      string              `json:"category"`
	Question      string              `json:"question"`
	ErrorCategory types.ErrorCategory `json:"errorCategory"`
	Message       string              `json:"message"`
}

// Warning flags a successful but slow or verbose answer.
type Warning struct {
	Category string `json:"category"`
	Question string `json:"question"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Sample is the performance record of one question.
type Sample struct {
	Category       string   `json:"category"`
	Question       string   `json:"question"`
	ResponseTimeMs int64    `json:"responseTimeMs"`
	ToolsUsed      int      `json:"toolsUsed"`
	Tools          []string `json:"tools,omitempty"`
	Success        bool     `json:"success"`
}

// TestResult accumulates the outcome of one batch. Successful+Failed always
// equals TotalQuestions, the number of questions actually executed.
type TestResult struct {
	TotalQuestions int       `json:"totalQuestions"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	Planned        int       `json:"planned"`
	Aborted        bool      `json:"aborted"`
	AbortReason    string    `json:"abortReason,omitempty"`
	Errors         []Failure `json:"errors"`
	Warnings       []Warning `json:"warnings"`
	Performance    []Sample  `json:"performance"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

func (r *TestResult) abort(reason string) {
	r.Aborted = true
	r.AbortReason = reason
}

// SuccessRate returns the share of successful questions in percent, rounded
// to one decimal place. It is 0 when nothing ran.
func (r *TestResult) SuccessRate() float64 {
	if r.TotalQuestions == 0 {
		return 0
	}
	return math.Round(float64(r.Successful)/float64(r.TotalQuestions)*1000) / 10
}

// Duration returns the wall-clock duration of the batch.
func (r *TestResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary holds the headline numbers of a report.
type Summary struct {
	TotalQuestions int    `json:"totalQuestions"`
	Planned        int    `json:"planned"`
	Successful     int    `json:"successful"`
	Failed         int    `json:"failed"`
	SuccessRate    string `json:"successRate"`
	Warnings       int    `json:"warnings"`
	Duration       string `json:"duration"`
	DurationMs     int64  `json:"durationMs"`
	AvgResponseMs  int64  `json:"avgResponseMs"`
	Aborted        bool   `json:"aborted"`
	AbortReason    string `json:"abortReason,omitempty"`
}

// CategorySummary aggregates the questions of one corpus category.
type CategorySummary struct {
	Total         int    `json:"total"`
	Successful    int    `json:"successful"`
	Failed        int    `json:"failed"`
	SuccessRate   string `json:"successRate"`
	AvgResponseMs int64  `json:"avgResponseMs"`
}

// Report is the shareable digest of a [TestResult].
type Report struct {
	Summary          Summary                           `json:"summary"`
	ErrorsByCategory map[types.ErrorCategory][]Failure `json:"errorsByCategory"`
	ByCategory       map[string]CategorySummary        `json:"byCategory"`
	Warnings         []Warning                         `json:"warnings"`
	SlowestQueries   []Sample                          `json:"slowestQueries"`
	FastestQueries   []Sample                          `json:"fastestQueries"`

	// ToolUsage counts calls per tool name.
	ToolUsage map[string]int `json:"toolUsage"`

	// ToolsPerQuestion maps a tool-call count to the number of questions
	// that made that many calls.
	ToolsPerQuestion map[int]int `json:"toolsPerQuestion"`
}

// DetailedReport derives a [Report] from r.
func (r *TestResult) DetailedReport() Report {
	rep := Report{
		Summary: Summary{
			TotalQuestions: r.TotalQuestions,
			Planned:        r.Planned,
			Successful:     r.Successful,
			Failed:         r.Failed,
			SuccessRate:    formatRate(r.SuccessRate()),
			Warnings:       len(r.Warnings),
			Duration:       r.Duration().Round(time.Millisecond).String(),
			DurationMs:     r.Duration().Milliseconds(),
			Aborted:        r.Aborted,
			AbortReason:    r.AbortReason,
		},
		ErrorsByCategory: map[types.ErrorCategory][]Failure{},
		ByCategory:       map[string]CategorySummary{},
		Warnings:         append([]Warning(nil), r.Warnings...),
		ToolUsage:        map[string]int{},
		ToolsPerQuestion: map[int]int{},
	}

	for _, f := range r.Errors {
		rep.ErrorsByCategory[f.ErrorCategory] = append(rep.ErrorsByCategory[f.ErrorCategory], f)
	}

	var totalMs int64
	catMs := map[string]int64{}
	for _, s := range r.Performance {
		totalMs += s.ResponseTimeMs
		cs := rep.ByCategory[s.Category]
		cs.Total++
		if s.Success {
			cs.Successful++
		} else {
			cs.Failed++
		}
		rep.ByCategory[s.Category] = cs
		catMs[s.Category] += s.ResponseTimeMs

		for _, name := range s.Tools {
			rep.ToolUsage[name]++
		}
		rep.ToolsPerQuestion[s.ToolsUsed]++
	}
	if n := len(r.Performance); n > 0 {
		rep.Summary.AvgResponseMs = totalMs / int64(n)
	}
	for name, cs := range rep.ByCategory {
		cs.AvgResponseMs = catMs[name] / int64(cs.Total)
		cs.SuccessRate = formatRate(math.Round(float64(cs.Successful)/float64(cs.Total)*1000) / 10)
		rep.ByCategory[name] = cs
	}

	byTime := slices.Clone(r.Performance)
	slices.SortStableFunc(byTime, func(a, b Sample) int {
		return cmp.Compare(b.ResponseTimeMs, a.ResponseTimeMs)
	})
	rep.SlowestQueries = slices.Clone(byTime[:min(reportTopN, len(byTime))])

	slices.SortStableFunc(byTime, func(a, b Sample) int {
		return cmp.Compare(a.ResponseTimeMs, b.ResponseTimeMs)
	})
	rep.FastestQueries = slices.Clone(byTime[:min(reportTopN, len(byTime))])

	return rep
}

func formatRate(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// ExportMarkdown renders rep as a Markdown document for sharing.
func ExportMarkdown(rep Report) string {
	var b strings.Builder
	s := rep.Summary

	b.WriteString("# AI Stress Test Report\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Questions | %d of %d |\n", s.TotalQuestions, s.Planned)
	fmt.Fprintf(&b, "| Successful | %d |\n", s.Successful)
	fmt.Fprintf(&b, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(&b, "| Success rate | %s |\n", s.SuccessRate)
	fmt.Fprintf(&b, "| Warnings | %d |\n", s.Warnings)
	fmt.Fprintf(&b, "| Avg response | %dms |\n", s.AvgResponseMs)
	fmt.Fprintf(&b, "| Duration | %s |\n", s.Duration)
	if s.Aborted {
		fmt.Fprintf(&b, "\n> **Aborted:** %s\n", mdEscape(s.AbortReason))
	}

	if len(rep.ByCategory) > 0 {
		b.WriteString("\n## Results by question category\n\n")
		b.WriteString("| Category | Total | Passed | Failed | Rate | Avg ms |\n|---|---|---|---|---|---|\n")
		for _, name := range sortedKeys(rep.ByCategory) {
			cs := rep.ByCategory[name]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s | %d |\n",
				mdEscape(name), cs.Total, cs.Successful, cs.Failed, cs.SuccessRate, cs.AvgResponseMs)
		}
	}

	if len(rep.ErrorsByCategory) > 0 {
		b.WriteString("\n## Errors by category\n")
		for _, cat := range sortedKeys(rep.ErrorsByCategory) {
			fails := rep.ErrorsByCategory[cat]
			fmt.Fprintf(&b, "\n### %s (%d)\n\n", cat, len(fails))
			for _, f := range fails {
				fmt.Fprintf(&b, "- **%s** %s: %s\n", mdEscape(f.Category), mdEscape(f.Question), mdEscape(f.Message))
			}
		}
	}

	if len(rep.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", w.Kind, mdEscape(w.Question), mdEscape(w.Message))
		}
	}

	writeSamples(&b, "Slowest queries", rep.SlowestQueries)
	writeSamples(&b, "Fastest queries", rep.FastestQueries)

	if len(rep.ToolUsage) > 0 {
		b.WriteString("\n## Tool usage\n\n| Tool | Calls |\n|---|---|\n")
		for _, name := range sortedKeys(rep.ToolUsage) {
			fmt.Fprintf(&b, "| %s | %d |\n", mdEscape(name), rep.ToolUsage[name])
		}
	}
	if len(rep.ToolsPerQuestion) > 0 {
		b.WriteString("\n## Tool calls per question\n\n| Tool calls | Questions |\n|---|---|\n")
		for _, n := range sortedKeys(rep.ToolsPerQuestion) {
			fmt.Fprintf(&b, "| %d | %d |\n", n, rep.ToolsPerQuestion[n])
		}
	}
	return b.String()
}

func writeSamples(b *strings.Builder, title string, samples []Sample) {
	if len(samples) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n| # | Question | Category | ms | Tools |\n|---|---|---|---|---|\n", title)
	for i, s := range samples {
		fmt.Fprintf(b, "| %d | %s | %s | %d | %d |\n",
			i+1, mdEscape(s.Question), mdEscape(s.Category), s.ResponseTimeMs, s.ToolsUsed)
	}
}

func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
