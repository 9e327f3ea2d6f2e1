// Package adapter hosts the shared runtime every upstream adapter daemon is
// built on: an operation registry, argument validation, quota admission,
// deadline-bounded execution and the HTTP surface.
package adapter

import (
	"context"
	"errors"
	"fmt"
)

// ParamType enumerates the argument types an operation can declare.
type ParamType string

const (
	TypeString     ParamType = "string"
	TypeInteger    ParamType = "integer"
	TypeBoolean    ParamType = "boolean"
	TypeStringList ParamType = "string_list"
	TypeObject     ParamType = "object"
)

// ParamSpec declares one argument of an operation.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// Args holds validated arguments keyed by parameter name. Typed accessors
// return the zero value for absent or differently typed entries; ValidateArgs
// guarantees declared entries carry their declared type.
type Args map[string]any

func (a Args) Has(name string) bool { _, ok := a[name]; return ok }

func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Args) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func (a Args) StringList(name string) []string {
	v, _ := a[name].([]string)
	return v
}

func (a Args) Object(name string) map[string]any {
	v, _ := a[name].(map[string]any)
	return v
}

// HandlerFunc executes an operation against the upstream with validated
// arguments. The context carries the call deadline; handlers must thread it
// into their outbound requests.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Spec declares one operation: its dotted wire name, quota category,
// argument shape and handler. Validate, when set, runs after type checking
// and before quota admission, so semantic rejections never spend quota.
type Spec struct {
	Name        string
	Description string
	Category    string // quota category; defaults to Name
	Params      []ParamSpec
	Validate    func(args Args) error
	Handler     HandlerFunc
}

// Registry holds an adapter's declared operations.
type Registry struct {
	ops   map[string]*Spec
	order []string
}

// NewRegistry builds a registry, rejecting duplicate or incomplete
// declarations so misconfiguration surfaces at startup rather than on the
// first call.
func NewRegistry(specs ...Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, errors.New("adapter: no operations declared")
	}
	r := &Registry{ops: make(map[string]*Spec, len(specs))}
	for i := range specs {
		s := specs[i]
		if s.Name == "" {
			return nil, errors.New("adapter: operation with empty name")
		}
		if s.Handler == nil {
			return nil, fmt.Errorf("adapter: operation %s has no handler", s.Name)
		}
		if _, dup := r.ops[s.Name]; dup {
			return nil, fmt.Errorf("adapter: duplicate operation %s", s.Name)
		}
		if s.Category == "" {
			s.Category = s.Name
		}
		r.ops[s.Name] = &s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Lookup resolves a dotted operation name.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.ops[name]
	return s, ok
}

// List returns the operations in declaration order.
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.ops[name])
	}
	return out
}
