package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/tool"
)

// placeholders are values models commonly emit when they do not know the
// real user ID or profile value.
var placeholders = map[string]bool{
	"user_id": true, "userid": true, "user-id": true, "user": true,
	"current_user": true, "current-user": true, "currentuser": true,
	"me": true, "self": true, "current": true, "default": true,
	"unknown": true, "null": true, "nil": true, "none": true, "undefined": true,
	"placeholder": true, "example": true, "string": true,
	"user123": true, "user_123": true, "12345": true, "123": true, "abc123": true,
}

// isPlaceholder reports whether a model-supplied argument should be treated
// as missing.
func isPlaceholder(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || placeholders[s] {
		return true
	}
	// <user_id>, {userId}, [USER_ID], {{user}}
	return (strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")) ||
		(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// decodeArguments parses the model's JSON argument string. An empty string
// decodes to an empty map.
func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode %q: %w", truncate(raw, 120), err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// resolveArguments fills context-bound parameters that the model left empty
// or set to a placeholder. Every other model-supplied argument is kept as is.
// The input map is not modified.
func (o *Orchestrator) resolveArguments(ctx context.Context, name string, args map[string]any, rc RunContext) map[string]any {
	schema, ok := o.tools.Lookup(name)
	if !ok {
		return args
	}
	out := maps.Clone(args)
	for _, p := range schema.Params {
		if p.FromContext == "" {
			continue
		}
		v, ok := contextValue(p.FromContext, rc)
		if !ok {
			continue
		}
		cur, present := out[p.Name]
		if present && !isPlaceholder(cur) {
			continue
		}
		out[p.Name] = v
		if present {
			observe.Logger(ctx).Debug("replaced placeholder tool argument",
				"tool", name, "param", p.Name, "source", p.FromContext)
		}
	}
	return out
}

// contextValue looks up a FromContext source in rc.
func contextValue(source string, rc RunContext) (any, bool) {
	switch {
	case source == tool.ContextUserID:
		return rc.UserID, rc.UserID != ""
	case strings.HasPrefix(source, tool.ContextProfilePrefix):
		v, ok := rc.Profile[strings.TrimPrefix(source, tool.ContextProfilePrefix)]
		if !ok || isPlaceholder(v) {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
