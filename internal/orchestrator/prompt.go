package orchestrator

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// buildMessages assembles the outbound conversation: the system prompt, the
// caller's prior turns, then the new user message.
func (o *Orchestrator) buildMessages(userMessage string, rc RunContext) []types.Message {
	msgs := make([]types.Message, 0, len(rc.History)+2)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: o.systemPrompt(rc)})
	for _, m := range rc.History {
		if m.Role == types.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, types.Message{Role: types.RoleUser, Content: userMessage})
}

func (o *Orchestrator) systemPrompt(rc RunContext) string {
	var b strings.Builder
	if o.cfg.DefaultInstructions != "" {
		b.WriteString(strings.TrimSpace(o.cfg.DefaultInstructions))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Today is %s.\n", o.now().Format("Monday, 2 January 2006"))
	if rc.UserID != "" {
		fmt.Fprintf(&b, "The current user ID is %q. Use it for any tool parameter that needs a user ID.\n", rc.UserID)
	}
	if rc.Screen != "" {
		fmt.Fprintf(&b, "The user is on the %s screen.\n", rc.Screen)
	}
	if keys := sortedKeys(rc.Profile); len(keys) > 0 {
		b.WriteString("User profile:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, formatValue(rc.Profile[k]))
		}
	}
	if o.tools.Len() > 0 {
		b.WriteString("Call the available tools whenever the answer depends on the user's data or the exercise and food catalogs.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// toolMessage renders a record as the tool-role message fed back to the model.
func toolMessage(rec tool.Record) types.Message {
	payload := map[string]any{"success": rec.Success}
	if oc, ok := rec.Result.(tool.Outcome); ok && oc.Data != nil {
		payload["data"] = oc.Data
	}
	if rec.Error != nil {
		payload["error"] = rec.Error.Message
		payload["category"] = rec.Error.Category
	}
	content, err := json.Marshal(payload)
	if err != nil {
		content = fmt.Appendf(nil, `{"success":false,"error":%q}`, "unencodable tool result: "+err.Error())
	}
	return types.Message{
		Role:       types.RoleTool,
		Name:       rec.Name,
		Content:    string(content),
		ToolCallID: rec.CallID,
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func metricAttrs(status string, category types.ErrorCategory) metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("status", status), observe.Attr("category", string(category)))
}
