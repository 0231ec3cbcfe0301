package parse

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseStringAs converts model output into T.
//
// Scalars (bool, integers, floats) are parsed with strconv after trimming
// whitespace and code fences; a schema-style envelope such as
// {"type":"integer","value":42} is unwrapped first when direct parsing fails.
// Strings are returned as is unless the whole content is such an envelope.
//
// Every other type is decoded as JSON. Attempts are made in order until one
// succeeds: the content itself, each balanced JSON value embedded in it (in
// order of appearance), and the content after jsonrepair. Each attempt also
// tries to fix the shape: an array is reduced to its first element when T is
// an object, and an object is wrapped when T is a slice. Finally, values of
// the form {"type":..., "value":...} are replaced by their value.
//
// Example:
//
//	type Person struct {
//	    Name string `json:"name"`
//	    Age  int    `json:"age"`
//	}
//
//	person, err := ParseStringAs[Person]("Sure, here it is:\n```json\n{\"name\":\"John\",\"age\":30}\n```")
//	n, err := ParseStringAs[int](" 42 ")
func ParseStringAs[T any](content string) (T, error) {
	var result T
	target := reflect.ValueOf(&result).Elem()

	switch target.Kind() {
	case reflect.String:
		if unwrapped, ok := unwrapPrimitive(strings.TrimSpace(content)); ok {
			target.SetString(unwrapped)
		} else {
			target.SetString(content)
		}
		return result, nil

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		text := strings.TrimSpace(stripFence(content))
		err := setScalar(target, text)
		if err == nil {
			return result, nil
		}
		if unwrapped, ok := unwrapPrimitive(text); ok {
			if setScalar(target, unwrapped) == nil {
				return result, nil
			}
		}
		return result, fmt.Errorf("parse: content as %s: %w", target.Kind(), err)
	}

	return decodeStructured[T](content)
}

func setScalar(v reflect.Value, text string) error {
	text = strings.Trim(text, `"`)
	switch v.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(text, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	}
	return nil
}

func decodeStructured[T any](content string) (T, error) {
	trimmed := strings.TrimSpace(stripFence(content))

	first := tryDecode[T](trimmed)
	if first.err == nil {
		return first.value, nil
	}

	// Malformed JSON is repaired as a whole before its nested values are
	// considered on their own.
	repaired, repairErr := jsonrepair.JSONRepair(trimmed)
	if repairErr == nil && startsJSON(trimmed) {
		if attempt := tryDecode[T](repaired); attempt.err == nil {
			return attempt.value, nil
		}
	}
	for _, candidate := range extractJSONCandidates(trimmed) {
		if attempt := tryDecode[T](candidate); attempt.err == nil {
			return attempt.value, nil
		}
	}

	if repairErr != nil {
		var zero T
		return zero, fmt.Errorf("parse: decode %T: %w (repair failed: %v)", zero, first.err, repairErr)
	}
	attempt := tryDecode[T](repaired)
	if attempt.err == nil {
		return attempt.value, nil
	}
	return attempt.value, fmt.Errorf("parse: decode %T: %w (content: %q, repaired: %q)", attempt.value, first.err, content, repaired)
}

func startsJSON(text string) bool {
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")
}

type decoded[T any] struct {
	value T
	err   error
}

// tryDecode decodes text into a fresh T, then retries with shape fixes and
// schema unwrapping. The error of the plain decode is reported.
func tryDecode[T any](text string) decoded[T] {
	var value T
	err := json.Unmarshal([]byte(text), &value)
	if err == nil {
		return decoded[T]{value: value}
	}
	if _, syntax := err.(*json.SyntaxError); syntax {
		return decoded[T]{err: err}
	}

	if fixed, ok := reshape(text, reflect.TypeFor[T]()); ok {
		var again T
		if json.Unmarshal([]byte(fixed), &again) == nil {
			return decoded[T]{value: again}
		}
	}
	if unwrapped, ok := unwrapSchemaValues(text); ok {
		var again T
		if json.Unmarshal([]byte(unwrapped), &again) == nil {
			return decoded[T]{value: again}
		}
	}
	return decoded[T]{err: err}
}

// reshape adapts an array to an object target (first element) and an object
// to a slice target (one-element array).
func reshape(text string, target reflect.Type) (string, bool) {
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	switch {
	case strings.HasPrefix(text, "[") && (target.Kind() == reflect.Struct || target.Kind() == reflect.Map):
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(text), &items); err != nil || len(items) == 0 {
			return "", false
		}
		return string(items[0]), true
	case strings.HasPrefix(text, "{") && (target.Kind() == reflect.Slice || target.Kind() == reflect.Array):
		return "[" + text + "]", true
	}
	return "", false
}

// stripFence returns the body of the first markdown code fence in content,
// or content unchanged when there is none.
func stripFence(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return content
	}
	body := content[start+3:]
	// language tag
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// extractJSONCandidates returns every balanced JSON object or array in
// content, ordered by starting offset. Nested values are returned after
// their parent. Incomplete values are skipped.
func extractJSONCandidates(content string) []string {
	candidates := []string{}
	for i := 0; i < len(content); i++ {
		if content[i] != '{' && content[i] != '[' {
			continue
		}
		if end := balancedEnd(content, i); end > 0 {
			candidates = append(candidates, content[i:end])
		}
	}
	return candidates
}

// balancedEnd returns the offset just past the value opening at start, or
// -1 when the brackets never balance.
func balancedEnd(s string, start int) int {
	var (
		closers  []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if len(closers) == 0 || closers[len(closers)-1] != c {
				return -1
			}
			closers = closers[:len(closers)-1]
			if len(closers) == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// unwrapPrimitive reads {"type":..., "value":...} and returns value as text.
func unwrapPrimitive(content string) (string, bool) {
	if !strings.HasPrefix(content, "{") {
		return "", false
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return "", false
	}
	value, ok := schemaValue(envelope)
	if !ok {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case float64, bool:
		return fmt.Sprint(v), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

// unwrapSchemaValues replaces every {"type":..., "value":...} node with its
// value, the shape models produce when they confuse a schema with data:
//
//	{"name": {"type": "string", "value": "John"}}  ->  {"name": "John"}
func unwrapSchemaValues(text string) (string, bool) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return "", false
	}
	out, err := json.Marshal(unwrap(data))
	if err != nil {
		return "", false
	}
	return string(out), true
}

func unwrap(data any) any {
	switch v := data.(type) {
	case map[string]any:
		if value, ok := schemaValue(v); ok {
			return unwrap(value)
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = unwrap(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = unwrap(item)
		}
		return out
	default:
		return data
	}
}

func schemaValue(node map[string]any) (any, bool) {
	if len(node) != 2 {
		return nil, false
	}
	if _, ok := node["type"]; !ok {
		return nil, false
	}
	value, ok := node["value"]
	return value, ok
}
