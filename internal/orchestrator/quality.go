package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/fitcoach/pkg/types"
)

// vaguePhrases mark answers that dodge the question.
var vaguePhrases = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i do not know",
	"i can't help",
	"i cannot help",
	"unable to help",
}

// qualityWarnings flags answers that are too long or too vague. They never
// fail a run.
func (o *Orchestrator) qualityWarnings(text string) []types.ErrorInfo {
	var out []types.ErrorInfo
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)

	if n > o.cfg.LongResponseChars {
		out = append(out, types.ErrorInfo{
			Category: types.CategoryResponseTooLong,
			Message:  fmt.Sprintf("response has %d characters, limit is %d", n, o.cfg.LongResponseChars),
		})
	}

	lower := strings.ToLower(trimmed)
	switch {
	case n < o.cfg.VagueResponseChars:
		out = append(out, types.ErrorInfo{
			Category: types.CategoryResponseTooVague,
			Message:  fmt.Sprintf("response has %d characters, minimum is %d", n, o.cfg.VagueResponseChars),
		})
	case n < 4*o.cfg.VagueResponseChars && containsAnyPhrase(lower, vaguePhrases):
		out = append(out, types.ErrorInfo{
			Category: types.CategoryResponseTooVague,
			Message:  "response does not commit to an answer",
		})
	}
	return out
}

func containsAnyPhrase(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
