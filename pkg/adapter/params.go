package adapter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

// ValidateArgs decodes raw call arguments against the operation's parameter
// declarations. Unknown keys are ignored. Declared parameters are coerced
// leniently where the intent is unambiguous (a bare string where a list is
// declared becomes a one-element list); anything else is a validation error.
func ValidateArgs(spec *Spec, raw json.RawMessage) (Args, error) {
	var fields map[string]json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, &toolcall.ValidationError{Field: "args", Reason: "must be a JSON object"}
		}
	}

	args := make(Args, len(spec.Params))
	for _, p := range spec.Params {
		rv, ok := fields[p.Name]
		if !ok || string(rv) == "null" {
			if p.Required {
				return nil, &toolcall.ValidationError{Field: p.Name, Reason: "required"}
			}
			continue
		}
		v, err := decodeParam(p, rv)
		if err != nil {
			return nil, err
		}
		args[p.Name] = v
	}
	return args, nil
}

func decodeParam(p ParamSpec, raw json.RawMessage) (any, error) {
	switch p.Type {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must be a string"}
		}
		if strings.TrimSpace(s) == "" && p.Required {
			return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must not be blank"}
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return nil, &toolcall.ValidationError{
				Field:  p.Name,
				Reason: fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")),
			}
		}
		return s, nil

	case TypeInteger:
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must be an integer"}
		}
		return n, nil

	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must be a boolean"}
		}
		return b, nil

	case TypeStringList:
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []string{s}, nil
		}
		return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must be a list of strings"}

	case TypeObject:
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &toolcall.ValidationError{Field: p.Name, Reason: "must be a JSON object"}
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("adapter: parameter %s has unknown type %q", p.Name, p.Type)
	}
}
