package util

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"
)

// ValidationError describes the first argument that does not match a schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var timeType = reflect.TypeOf(time.Time{})

// CreateSchema derives an object schema from a struct value. Field names come
// from json tags; the description and enum tags are copied into the property.
// Fields without omitempty that are not pointers are required.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return objectSchema(t)
}

func objectSchema(t reflect.Type) map[string]any {
	props := map[string]any{}
	var required []string

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}

		prop := typeSchema(f.Type)
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			prop["enum"] = strings.Split(e, ",")
		}
		props[name] = prop

		if !omitEmpty && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, slices.Contains(strings.Split(opts, ","), "omitempty"), false
}

func typeSchema(t reflect.Type) map[string]any {
	if t == timeType {
		return map[string]any{"type": "string", "format": "date-time"}
	}
	switch t.Kind() {
	case reflect.Pointer:
		return typeSchema(t.Elem())
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object", "additionalProperties": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	default:
		return map[string]any{"type": "string"}
	}
}

// StrictSchema returns a copy of an object schema with additionalProperties
// disabled and every property marked required, the shape expected by strict
// structured output modes.
func StrictSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	out["required"] = names
	out["additionalProperties"] = false
	return out
}

// ValidateParameters checks JSON decoded arguments against the required list,
// the property types and enums of an object schema. Unknown arguments pass.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		value := params[name]
		if typ, _ := prop["type"].(string); !matchesType(value, typ) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("expected type %s, got %T", typ, value)}
		}
		if enum := stringList(prop["enum"]); len(enum) > 0 {
			if s, ok := value.(string); ok && !slices.Contains(enum, s) {
				return &ValidationError{Field: name, Value: value, Message: "must be one of " + strings.Join(enum, ", ")}
			}
		}
	}
	return nil
}

// stringList accepts []string (declared in Go) and []any (decoded from JSON).
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// matchesType reports whether a JSON decoded value fits a schema type. nil
// and unknown types always match.
func matchesType(value any, typ string) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch typ {
	case "string":
		return rv.Kind() == reflect.String
	case "boolean":
		return rv.Kind() == reflect.Bool
	case "integer":
		switch {
		case rv.CanInt(), rv.CanUint():
			return true
		case rv.CanFloat():
			f := rv.Float()
			return f == float64(int64(f))
		}
		return false
	case "number":
		return rv.CanInt() || rv.CanUint() || rv.CanFloat()
	case "array":
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case "object":
		return rv.Kind() == reflect.Map
	default:
		return true
	}
}
