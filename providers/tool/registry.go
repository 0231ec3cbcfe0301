package tool

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/leofalp/llmkit/providers/ai"
)

// Registry is an immutable set of tool descriptors keyed by name. Schemas
// are resolved once at construction, so lookups and validation are safe for
// concurrent use.
type Registry struct {
	tools map[string]*entry
}

type entry struct {
	descriptor *Descriptor
	resolved   *jsonschema.Resolved
}

// NewRegistry builds a registry. Duplicate names, empty names and schemas
// that fail to parse or resolve return an InvalidArgument error.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{tools: make(map[string]*entry, len(descriptors))}
	for _, d := range descriptors {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tool sets; it panics on error.
func MustRegistry(descriptors ...*Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) add(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return ai.NewError(ai.KindInvalidArgument, "tool descriptor without a name")
	}
	if _, exists := r.tools[d.Name]; exists {
		return ai.NewError(ai.KindInvalidArgument, "duplicate tool %q", d.Name)
	}

	e := &entry{descriptor: d}
	if len(d.InputSchema) > 0 {
		var schema jsonschema.Schema
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
			return ai.WrapError(ai.KindInvalidArgument, err, "tool %q: parse input schema", d.Name)
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return ai.WrapError(ai.KindInvalidArgument, err, "tool %q: resolve input schema", d.Name)
		}
		e.resolved = resolved
	}
	r.tools[d.Name] = e
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.descriptor, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.tools))
}

// Definitions returns the model-facing definitions sorted by name, so
// requests built from the same registry are byte-identical.
func (r *Registry) Definitions() []ai.ToolDefinition {
	names := r.Names()
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].descriptor.Definition())
	}
	return defs
}

// Merge returns a new registry holding the tools of r and other. A name
// present in both is an InvalidArgument error.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	merged := r.Clone()
	if other == nil {
		return merged, nil
	}
	for _, name := range other.Names() {
		if _, exists := merged.tools[name]; exists {
			return nil, ai.NewError(ai.KindInvalidArgument, "duplicate tool %q", name)
		}
		merged.tools[name] = other.tools[name]
	}
	return merged, nil
}

// Clone returns an independent copy. Descriptors are shared.
func (r *Registry) Clone() *Registry {
	clone := &Registry{tools: make(map[string]*entry, r.Len())}
	if r != nil {
		maps.Copy(clone.tools, r.tools)
	}
	return clone
}

// ValidateInput checks input against the tool's schema. It returns a
// NoSuchTool error for unknown names and an InvalidToolInput error when the
// input is not JSON or does not satisfy the schema.
func (r *Registry) ValidateInput(name string, input json.RawMessage) error {
	if r == nil {
		return ai.NewError(ai.KindNoSuchTool, "tool %q is not available", name)
	}
	e, ok := r.tools[name]
	if !ok {
		return ai.NewError(ai.KindNoSuchTool, "tool %q is not available", name)
	}
	return validate(e.resolved, name, input)
}

func validate(resolved *jsonschema.Resolved, name string, input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var instance any
	if err := json.Unmarshal(input, &instance); err != nil {
		return ai.WrapError(ai.KindInvalidToolInput, err, "tool %q: input is not valid JSON", name)
	}
	if resolved == nil {
		return nil
	}
	if err := resolved.Validate(instance); err != nil {
		return ai.WrapError(ai.KindInvalidToolInput, err, "tool %q: %s", name, err.Error())
	}
	return nil
}

// String lists the tool names.
func (r *Registry) String() string {
	return fmt.Sprintf("tool.Registry%v", r.Names())
}
