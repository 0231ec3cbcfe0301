// Package jsonschema derives JSON Schemas from Go types by reflection. Typed
// tools use it to publish their input schema; the schemas are then resolved
// and enforced with github.com/google/jsonschema-go in the tool registry.
package jsonschema
