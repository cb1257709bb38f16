package schema

import (
	"errors"
	"strings"
)

var ErrFieldIndex = errors.New("field index out of range")

// Editor is the field list being built in the table drawer.
type Editor struct {
	fields []Field
}

func NewEditor(fields []Field) *Editor {
	return &Editor{fields: append([]Field(nil), fields...)}
}

func (e *Editor) Fields() []Field {
	out := make([]Field, len(e.fields))
	for i, f := range e.fields {
		f.Order = i
		out[i] = f
	}
	return out
}

func (e *Editor) Len() int { return len(e.fields) }

func (e *Editor) CanAdd() bool { return len(e.fields) < MaxFields }

func (e *Editor) Add(name string, t FieldType) error {
	if !e.CanAdd() {
		return ErrTooManyFields
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("field name is required")
	}
	if e.has(name, -1) {
		return ErrDuplicate
	}
	e.fields = append(e.fields, Field{Name: name, Type: ParseFieldType(string(t))})
	return nil
}

func (e *Editor) Remove(i int) error {
	if i < 0 || i >= len(e.fields) {
		return ErrFieldIndex
	}
	e.fields = append(e.fields[:i], e.fields[i+1:]...)
	return nil
}

func (e *Editor) Rename(i int, name string) error {
	if i < 0 || i >= len(e.fields) {
		return ErrFieldIndex
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("field name is required")
	}
	if e.has(name, i) {
		return ErrDuplicate
	}
	e.fields[i].Name = name
	return nil
}

func (e *Editor) SetType(i int, t FieldType) error {
	if i < 0 || i >= len(e.fields) {
		return ErrFieldIndex
	}
	e.fields[i].Type = ParseFieldType(string(t))
	return nil
}

// Move shifts field i by delta places, stopping at either end.
func (e *Editor) Move(i, delta int) error {
	if i < 0 || i >= len(e.fields) {
		return ErrFieldIndex
	}
	j := i + delta
	if j < 0 {
		j = 0
	}
	if j >= len(e.fields) {
		j = len(e.fields) - 1
	}
	f := e.fields[i]
	if j > i {
		copy(e.fields[i:j], e.fields[i+1:j+1])
	} else {
		copy(e.fields[j+1:i+1], e.fields[j:i])
	}
	e.fields[j] = f
	return nil
}

func (e *Editor) has(name string, except int) bool {
	for i, f := range e.fields {
		if i != except && strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}
