// Package schema validates and edits the field list of a card table and
// builds the import template for it.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFields is the most fields a table may define.
const MaxFields = 20

type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeEmail    FieldType = "email"
	TypeImage    FieldType = "image"
	TypeTextarea FieldType = "textarea"
)

var FieldTypes = []FieldType{TypeText, TypeNumber, TypeDate, TypeEmail, TypeImage, TypeTextarea}

// ParseFieldType coerces unknown types to text.
func ParseFieldType(raw string) FieldType {
	t := FieldType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range FieldTypes {
		if t == known {
			return t
		}
	}
	return TypeText
}

type Field struct {
	Name  string    `json:"name"`
	Type  FieldType `json:"type"`
	Order int       `json:"order"`
}

var (
	ErrNameRequired  = errors.New("table name is required")
	ErrTooManyFields = fmt.Errorf("maximum %d fields allowed", MaxFields)
	ErrDuplicate     = errors.New("field with this name already exists")
)

// Normalize validates fields and returns them trimmed, typed and
// renumbered in list order.
func Normalize(fields []Field) ([]Field, error) {
	if len(fields) > MaxFields {
		return nil, ErrTooManyFields
	}
	out := make([]Field, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("field %d name is required", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		seen[key] = true
		out = append(out, Field{Name: name, Type: ParseFieldType(string(f.Type)), Order: i})
	}
	return out, nil
}

// Validate checks a whole table definition.
func Validate(name string, fields []Field) (string, []Field, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, ErrNameRequired
	}
	normalized, err := Normalize(fields)
	if err != nil {
		return "", nil, err
	}
	return name, normalized, nil
}

// Names returns the field names, skipping image fields when withImages is
// false.
func Names(fields []Field, withImages bool) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !withImages && f.Type == TypeImage {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// ImageFields are the fields that hold photos.
func ImageFields(fields []Field) []string {
	var out []string
	for _, f := range fields {
		if f.Type == TypeImage {
			out = append(out, f.Name)
		}
	}
	return out
}

// DisplayField is the field used as a card's name: the first text-like
// field, or the first field at all.
func DisplayField(fields []Field) string {
	for _, f := range fields {
		if f.Type == TypeText || f.Type == TypeTextarea {
			return f.Name
		}
	}
	if len(fields) > 0 {
		return fields[0].Name
	}
	return ""
}
