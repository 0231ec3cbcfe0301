package jsonschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Schema is the subset of JSON Schema emitted for tool inputs and structured
// output formats.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Format               string             `json:"format,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Default              any                `json:"default,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Defs                 map[string]*Schema `json:"$defs,omitempty"`
}

var (
	timeType       = reflect.TypeFor[time.Time]()
	rawMessageType = reflect.TypeFor[json.RawMessage]()
)

// Generate derives a schema for T. Struct fields follow encoding/json naming;
// a field is required unless it is a pointer or tagged omitempty/omitzero, or
// when tagged `jsonschema:"required"`. Self-referencing structs are emitted
// once under $defs and referenced with $ref.
//
// The jsonschema tag accepts "required", "enum=<v>" (repeatable) and
// "description=<text>"; description must come last because it may contain commas.
func Generate[T any]() (*Schema, error) {
	g := &generator{
		names: make(map[reflect.Type]string),
		defs:  make(map[string]*Schema),
	}
	schema, err := g.schemaFor(reflect.TypeFor[T](), true)
	if err != nil {
		return nil, err
	}
	if len(g.defs) > 0 {
		schema.Defs = g.defs
	}
	return schema, nil
}

// For returns the generated schema for T as JSON.
func For[T any]() (json.RawMessage, error) {
	schema, err := Generate[T]()
	if err != nil {
		return nil, err
	}
	return json.Marshal(schema)
}

// MustFor is For for package-level tool declarations; it panics on error.
func MustFor[T any]() json.RawMessage {
	raw, err := For[T]()
	if err != nil {
		panic(fmt.Sprintf("jsonschema: %v", err))
	}
	return raw
}

type generator struct {
	names map[reflect.Type]string
	defs  map[string]*Schema
}

func (g *generator) schemaFor(t reflect.Type, root bool) (*Schema, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return &Schema{Type: "string", Format: "date-time"}, nil
	case t == rawMessageType, t.Kind() == reflect.Interface:
		return &Schema{}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string", Format: "byte"}, nil
		}
		items, err := g.schemaFor(t.Elem(), false)
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", t.Key())
		}
		values, err := g.schemaFor(t.Elem(), false)
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "object", AdditionalProperties: values}, nil
	case reflect.Struct:
		return g.structSchema(t, root)
	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
}

// structSchema inlines non-recursive structs. A recursive struct is stored in
// defs and referenced; the root keeps its full body so the top level stays
// an object schema.
func (g *generator) structSchema(t reflect.Type, root bool) (*Schema, error) {
	if name, ok := g.names[t]; ok {
		return &Schema{Ref: "#/$defs/" + name}, nil
	}

	recursive := refersTo(t, t, map[reflect.Type]bool{})
	if recursive {
		g.names[t] = defName(t)
	}

	schema := &Schema{
		Type:                 "object",
		Properties:           map[string]*Schema{},
		AdditionalProperties: false,
	}
	if err := g.addFields(schema, t); err != nil {
		return nil, err
	}

	if !recursive {
		return schema, nil
	}
	if root {
		// The root later receives $defs; store a copy so the definition does not contain itself.
		def := *schema
		g.defs[g.names[t]] = &def
		return schema, nil
	}
	g.defs[g.names[t]] = schema
	return &Schema{Ref: "#/$defs/" + g.names[t]}, nil
}

func (g *generator) addFields(schema *Schema, t reflect.Type) error {
	for i := range t.NumField() {
		field := t.Field(i)

		// Embedded structs without a json name are flattened like encoding/json does.
		if field.Anonymous && field.Tag.Get("json") == "" {
			embedded := field.Type
			for embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				if err := g.addFields(schema, embedded); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		name, omit, skip := jsonName(field)
		if skip {
			continue
		}

		fieldSchema, err := g.schemaFor(field.Type, false)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}

		required := field.Type.Kind() != reflect.Pointer && !omit
		if tag := field.Tag.Get("jsonschema"); tag != "" {
			forced, err := applyTag(fieldSchema, field.Type, tag)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			required = required || forced
		}

		schema.Properties[name] = fieldSchema
		if required {
			schema.Required = append(schema.Required, name)
		}
	}
	return nil
}

func jsonName(field reflect.StructField) (name string, omit bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" || opt == "omitzero" {
			omit = true
		}
	}
	return name, omit, false
}

func applyTag(schema *Schema, t reflect.Type, tag string) (required bool, err error) {
	for tag != "" {
		var item string
		if strings.HasPrefix(tag, "description=") {
			item, tag = tag, ""
		} else {
			item, tag, _ = strings.Cut(tag, ",")
		}

		key, value, hasValue := strings.Cut(item, "=")
		switch {
		case key == "required" && !hasValue:
			required = true
		case key == "description":
			schema.Description = value
		case key == "format":
			schema.Format = value
		case key == "enum":
			v, err := enumValue(t, value)
			if err != nil {
				return false, err
			}
			schema.Enum = append(schema.Enum, v)
		default:
			return false, fmt.Errorf("unknown jsonschema tag %q", item)
		}
	}
	return required, nil
}

func enumValue(t reflect.Type, value string) (any, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return value, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseInt(value, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(value, 64)
	case reflect.Bool:
		return strconv.ParseBool(value)
	default:
		return nil, fmt.Errorf("enum not supported for %s", t)
	}
}

// refersTo reports whether target is reachable from the fields of current.
func refersTo(target, current reflect.Type, seen map[reflect.Type]bool) bool {
	for current.Kind() == reflect.Pointer || current.Kind() == reflect.Slice ||
		current.Kind() == reflect.Array || current.Kind() == reflect.Map {
		current = current.Elem()
	}
	if current.Kind() != reflect.Struct || seen[current] {
		return false
	}
	seen[current] = true

	for i := range current.NumField() {
		ft := current.Field(i).Type
		for ft.Kind() == reflect.Pointer || ft.Kind() == reflect.Slice ||
			ft.Kind() == reflect.Array || ft.Kind() == reflect.Map {
			ft = ft.Elem()
		}
		if ft == target || refersTo(target, ft, seen) {
			return true
		}
	}
	return false
}

func defName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return "anonymous"
}

// String returns the compact JSON encoding.
func (s *Schema) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
