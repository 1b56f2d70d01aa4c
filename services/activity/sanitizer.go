package activity

import (
	"encoding/json"
	"math"
	"reflect"
)

// RedactedValue replaces the value of every sensitive field
const RedactedValue = "*** Redacted ***"

// inputKey holds the mutation input in context data
const inputKey = "input"

// Query engine artifacts removed from mutation inputs before persistence
var unsupportedInputProps = []string{"_id", "sort", "i_attributes", "i_relation"}

// Sanitizer redacts sensitive fields from action context data
type Sanitizer struct {
	sensitive map[string]struct{}
}

// NewSanitizer creates a Sanitizer for the given sensitive field names
func NewSanitizer(fields []string) *Sanitizer {
	sensitive := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		sensitive[f] = struct{}{}
	}
	return &Sanitizer{sensitive: sensitive}
}

// IsSensitive reports whether values stored under key must be redacted
func (s *Sanitizer) IsSensitive(key string) bool {
	_, ok := s.sensitive[key]
	return ok
}

// Sanitize returns a redacted copy of payload. The payload itself is never modified,
// so the same context data can be shared between concurrent invocations.
func (s *Sanitizer) Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out, ok := s.SanitizeValue(payload).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// frame is a pending node of the walk: the source value and where its copy goes
type frame struct {
	src any
	set func(any)
}

// SanitizeValue walks v with an explicit stack and returns the sanitized copy.
// Maps and sequences are rebuilt; scalars are shared. Cyclic input never terminates.
func (s *Sanitizer) SanitizeValue(v any) any {
	var root any
	stack := []frame{{src: v, set: func(c any) { root = c }}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node := normalize(f.src).(type) {
		case map[string]any:
			dst := make(map[string]any, len(node))
			f.set(dst)
			for key, value := range node {
				if s.IsSensitive(key) {
					dst[key] = RedactedValue
					continue
				}
				if key == inputKey {
					value = s.prepareInput(value)
				}
				stack = append(stack, frame{src: value, set: func(c any) { dst[key] = c }})
			}
		case []any:
			dst := make([]any, len(node))
			f.set(dst)
			for i, item := range node {
				stack = append(stack, frame{src: item, set: func(c any) { dst[i] = c }})
			}
		default:
			f.set(node)
		}
	}
	return root
}

// prepareInput applies the input specific rules on a shallow copy of value.
// Attribute patches ({key, value} elements) on a sensitive key collapse to {key: sentinel};
// input objects lose their query engine artifacts.
func (s *Sanitizer) prepareInput(value any) any {
	switch input := normalize(value).(type) {
	case []any:
		prepared := make([]any, len(input))
		for i, element := range input {
			prepared[i] = element
			patch, ok := normalize(element).(map[string]any)
			if !ok {
				continue
			}
			key, _ := patch["key"].(string)
			if key != "" && truthy(patch["value"]) && s.IsSensitive(key) {
				prepared[i] = map[string]any{key: RedactedValue}
			}
		}
		return prepared
	case map[string]any:
		prepared := make(map[string]any, len(input))
		for k, v := range input {
			prepared[k] = v
		}
		for _, prop := range unsupportedInputProps {
			delete(prepared, prop)
		}
		return prepared
	default:
		return value
	}
}

// normalize turns typed Go containers (structs, typed maps and slices) into the
// generic map[string]any / []any tree so every nested field name can be inspected.
// Values with no JSON form (non-finite floats, channels, funcs, complex numbers)
// become nil so the envelope always encodes.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, map[string]any, []any, string, bool,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return v
	case float64:
		return finite(t, v)
	case float32:
		return finite(float64(t), v)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
			return nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			// an unreadable value cannot be proven safe
			return RedactedValue
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return RedactedValue
		}
		return generic
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float(), v)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil
	default:
		return v
	}
}

func finite(f float64, v any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return v
}

// truthy mirrors the loose emptiness check applied to attribute patch values
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t.String() != "0"
	default:
		return true
	}
}
