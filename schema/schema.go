// Package schema describes tool input and output shapes and validates JSON
// values against them. The same descriptors drive runtime validation and
// the machine-readable capability listing advertised to callers.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Field types understood by the validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Field describes a single field of a tool's input or output.
type Field struct {
	Type        string           `json:"type"`
	Required    bool             `json:"required,omitempty"`
	Description string           `json:"description,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	Properties  map[string]Field `json:"properties,omitempty"`
	Items       *Field           `json:"items,omitempty"`
}

// Object is a named set of fields, the top-level shape of every tool input.
type Object map[string]Field

// Validate checks a decoded JSON object against the schema. The returned
// error names the first violating field and the reason.
func (o Object) Validate(input map[string]any) error {
	return validateObject("", o, input)
}

func validateObject(path string, fields map[string]Field, input map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := fields[name]
		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}

		value, present := input[name]
		if !present || value == nil {
			if field.Required {
				return fmt.Errorf("field %q is required", fieldPath)
			}
			continue
		}

		if err := validateValue(fieldPath, field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, field Field, value any) error {
	switch field.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", path, value)
		}
		if len(field.Enum) > 0 && !contains(field.Enum, s) {
			return fmt.Errorf("field %q: %q is not one of [%s]", path, s, strings.Join(field.Enum, ", "))
		}

	case TypeNumber:
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("field %q: expected number, got %T", path, value)
		}

	case TypeInteger:
		// JSON decodes all numbers to float64; whole values pass.
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("field %q: expected integer, got %T", path, value)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("field %q: expected integer, got %v", path, f)
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q: expected boolean, got %T", path, value)
		}

	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: expected object, got %T", path, value)
		}
		if field.Properties != nil {
			return validateObject(path, field.Properties, obj)
		}

	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %q: expected array, got %T", path, value)
		}
		if field.Items != nil {
			for i, item := range arr {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), *field.Items, item); err != nil {
					return err
				}
			}
		}

	case "":
		// Untyped fields accept anything.

	default:
		return fmt.Errorf("field %q: unknown schema type %q", path, field.Type)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// JSONSchema projects the object into the JSON Schema subset that
// function-calling APIs expect: {"type":"object","properties":...,
// "required":[...]}.
func (o Object) JSONSchema() map[string]any {
	return fieldSetSchema(o)
}

func fieldSetSchema(fields map[string]Field) map[string]any {
	properties := make(map[string]any, len(fields))
	var required []string

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := fields[name]
		properties[name] = fieldSchema(field)
		if field.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(field Field) map[string]any {
	s := map[string]any{}
	if field.Type != "" {
		s["type"] = field.Type
	}
	if field.Description != "" {
		s["description"] = field.Description
	}
	if len(field.Enum) > 0 {
		s["enum"] = field.Enum
	}
	if field.Type == TypeObject && field.Properties != nil {
		nested := fieldSetSchema(field.Properties)
		for k, v := range nested {
			s[k] = v
		}
	}
	if field.Type == TypeArray && field.Items != nil {
		s["items"] = fieldSchema(*field.Items)
	}
	return s
}
