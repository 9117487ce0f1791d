package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/fitcoach/internal/tool"
)

// maxDescription caps imported tool descriptions.
const maxDescription = 1024

// convertSchema turns a remote tool's JSON input schema into a typed
// [tool.Schema]. Optional properties of unsupported types are dropped; a
// required property of an unsupported type makes the tool unusable and is
// reported as an error.
func convertSchema(name, description string, inputSchema any) (tool.Schema, error) {
	s := tool.Schema{
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if s.Description == "" {
		s.Description = "Remote tool " + name
	}
	if len(s.Description) > maxDescription {
		s.Description = s.Description[:maxDescription]
	}

	root := schemaToMap(inputSchema)
	props, _ := root["properties"].(map[string]any)
	required := map[string]bool{}
	if req, ok := root["required"].([]any); ok {
		for _, r := range req {
			if n, ok := r.(string); ok {
				required[n] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	slices.Sort(names)

	for _, pname := range names {
		prop, _ := props[pname].(map[string]any)
		p, ok := convertProperty(pname, prop)
		p.Required = required[pname]
		if !ok {
			if p.Required {
				return tool.Schema{}, fmt.Errorf("mcp: tool %q: required parameter %q has unsupported type %v", name, pname, prop["type"])
			}
			slog.Debug("mcp: dropping unsupported optional parameter", "tool", name, "param", pname, "type", prop["type"])
			continue
		}
		s.Params = append(s.Params, p)
	}
	return s, nil
}

func convertProperty(name string, prop map[string]any) (tool.Param, bool) {
	p := tool.Param{Name: name}
	p.Description, _ = prop["description"].(string)

	if enum, ok := prop["enum"].([]any); ok && len(enum) > 0 {
		for _, e := range enum {
			sv, ok := e.(string)
			if !ok {
				return p, false
			}
			p.Enum = append(p.Enum, sv)
		}
		p.Kind = tool.KindEnum
		return p, true
	}

	switch jsonType(prop) {
	case "string":
		p.Kind = tool.KindString
	case "number", "integer":
		p.Kind = tool.KindNumber
	case "array":
		p.Kind = tool.KindArray
		items, _ := prop["items"].(map[string]any)
		switch jsonType(items) {
		case "string":
			p.Items = tool.KindString
		case "number", "integer":
			p.Items = tool.KindNumber
		}
	default:
		return p, false
	}
	return p, true
}

// jsonType returns the schema "type", picking the first non-null entry when
// it is a list.
func jsonType(prop map[string]any) string {
	switch t := prop["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}
