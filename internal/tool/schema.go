// Package tool implements the registry of callable domain functions offered to
// the LLM.
//
// Each tool is described by a typed [Schema] that is validated when it is
// registered and serialised to JSON Schema for the provider. [Registry.Execute]
// never returns an error and never panics: every outcome, including an unknown
// tool name, bad arguments, an executor error or a recovered panic, is
// normalised into a [Record].
package tool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/fitcoach/pkg/types"
)

// ErrInvalidSchema is returned by [Registry.Register] when a schema is malformed.
var ErrInvalidSchema = errors.New("tool: invalid schema")

// Kind is the value type of a tool parameter.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindArray  Kind = "array"
	KindEnum   Kind = "enum"
)

// Context sources a [Param] can be bound to via FromContext.
const (
	ContextUserID        = "user_id"
	ContextProfilePrefix = "profile."
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Param describes one named argument of a tool.
type Param struct {
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Description string `yaml:"description" json:"description,omitempty"`
	Required    bool   `yaml:"required" json:"required,omitempty"`

	// Enum lists the allowed values when Kind is KindEnum.
	Enum []string `yaml:"enum" json:"enum,omitempty"`

	// Items is the element kind when Kind is KindArray. Empty means any.
	Items Kind `yaml:"items" json:"items,omitempty"`

	// FromContext binds the parameter to caller context: "user_id" or
	// "profile.<key>". The orchestrator fills it when the model leaves it empty
	// or supplies a placeholder.
	FromContext string `yaml:"from_context" json:"fromContext,omitempty"`
}

// Schema is the declared name, description, and parameter shape of a tool.
type Schema struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Params      []Param `yaml:"params" json:"params"`
}

// Param returns the parameter called name.
func (s Schema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Validate checks that s is well-formed. All problems are reported together.
func (s Schema) Validate() error {
	var errs []error
	if !namePattern.MatchString(s.Name) {
		errs = append(errs, fmt.Errorf("name %q must match %s", s.Name, namePattern))
	}
	if strings.TrimSpace(s.Description) == "" {
		errs = append(errs, fmt.Errorf("tool %q: description is required", s.Name))
	}
	seen := make(map[string]bool, len(s.Params))
	for i, p := range s.Params {
		prefix := fmt.Sprintf("tool %q: params[%d] %q", s.Name, i, p.Name)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate parameter", prefix))
		}
		seen[p.Name] = true
		switch p.Kind {
		case KindString, KindNumber:
		case KindArray:
			if p.Items != "" && p.Items != KindString && p.Items != KindNumber {
				errs = append(errs, fmt.Errorf("%s: items must be string or number, got %q", prefix, p.Items))
			}
		case KindEnum:
			if len(p.Enum) == 0 {
				errs = append(errs, fmt.Errorf("%s: enum parameter needs at least one value", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", prefix, p.Kind))
		}
		if p.FromContext != "" && p.FromContext != ContextUserID &&
			(!strings.HasPrefix(p.FromContext, ContextProfilePrefix) || len(p.FromContext) == len(ContextProfilePrefix)) {
			errs = append(errs, fmt.Errorf("%s: from_context must be %q or %q<key>", prefix, ContextUserID, ContextProfilePrefix))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, errors.Join(errs...))
	}
	return nil
}

// Definition serialises s into the provider-facing tool definition with a
// JSON Schema object describing the parameters.
func (s Schema) Definition() types.ToolDefinition {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		switch p.Kind {
		case KindEnum:
			prop["type"] = "string"
			prop["enum"] = append([]string(nil), p.Enum...)
		case KindArray:
			prop["type"] = "array"
			if p.Items != "" {
				prop["items"] = map[string]any{"type": string(p.Items)}
			}
		default:
			prop["type"] = string(p.Kind)
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	params := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return types.ToolDefinition{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  params,
	}
}

// checkArgs verifies that args satisfy the declared parameters. Unknown
// arguments are tolerated and passed through to the executor.
func (s Schema) checkArgs(args map[string]any) error {
	var missing []string
	var errs []error
	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil || v == "" {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		if err := p.check(v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(missing) > 0 {
		errs = append([]error{fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))}, errs...)
	}
	return errors.Join(errs...)
}

func (p Param) check(v any) error {
	switch p.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("parameter %q must be a string, got %T", p.Name, v)
		}
	case KindNumber:
		if !isNumber(v) {
			return fmt.Errorf("parameter %q must be a number, got %T", p.Name, v)
		}
	case KindEnum:
		sv, ok := v.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be one of %v, got %T", p.Name, p.Enum, v)
		}
		for _, e := range p.Enum {
			if strings.EqualFold(e, sv) {
				return nil
			}
		}
		return fmt.Errorf("parameter %q must be one of %v, got %q", p.Name, p.Enum, sv)
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an array, got %T", p.Name, v)
		}
		for i, it := range items {
			switch p.Items {
			case KindString:
				if _, ok := it.(string); !ok {
					return fmt.Errorf("parameter %q[%d] must be a string, got %T", p.Name, i, it)
				}
			case KindNumber:
				if !isNumber(it) {
					return fmt.Errorf("parameter %q[%d] must be a number, got %T", p.Name, i, it)
				}
			}
		}
	}
	return nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}
