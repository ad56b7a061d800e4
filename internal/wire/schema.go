package wire

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

type fieldKind uint8

const (
	kindString fieldKind = iota + 1
	kindBytes
	kindBool
	kindInt
	kindUint
	kindMessage
	kindRepeated
)

// Field is one entry of a message schema, derived from an `im:"<number>"`
// struct tag.
type Field struct {
	Number   protowire.Number
	Name     string
	WireType protowire.Type

	kind  fieldKind
	index int
	elem  *Schema
}

// Schema is the ordered field table for one message struct.
type Schema struct {
	Type   reflect.Type
	Fields []Field

	byNumber map[protowire.Number]int
}

var schemas sync.Map

// SchemaOf returns the cached schema for the struct type of v.
func SchemaOf(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema of %T: %w", v, ErrUnsupportedFieldType)
	}
	return schemaFor(t)
}

// Lookup returns the field registered under num.
func (s *Schema) Lookup(num protowire.Number) (Field, bool) {
	idx, ok := s.byNumber[num]
	if !ok {
		return Field{}, false
	}
	return s.Fields[idx], true
}

func schemaFor(t reflect.Type) (*Schema, error) {
	if cached, ok := schemas.Load(t); ok {
		return cached.(*Schema), nil
	}

	schema := &Schema{Type: t}
	seen := make(map[protowire.Number]string)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("im")
		if !ok || tag == "-" {
			continue
		}
		if !sf.IsExported() {
			return nil, fmt.Errorf("schema %s.%s: field is unexported", t.Name(), sf.Name)
		}

		n, err := strconv.Atoi(tag)
		if err != nil || n < int(protowire.MinValidNumber) || n > int(protowire.MaxValidNumber) {
			return nil, fmt.Errorf("schema %s.%s: invalid field number %q", t.Name(), sf.Name, tag)
		}
		num := protowire.Number(n)
		if prev, dup := seen[num]; dup {
			return nil, fmt.Errorf("schema %s: field number %d used by %s and %s", t.Name(), num, prev, sf.Name)
		}
		seen[num] = sf.Name

		field := Field{Number: num, Name: sf.Name, index: i}
		if err := classify(&field, sf.Type); err != nil {
			return nil, fmt.Errorf("schema %s.%s: %w", t.Name(), sf.Name, err)
		}
		schema.Fields = append(schema.Fields, field)
	}

	slices.SortFunc(schema.Fields, func(a, b Field) int {
		return int(a.Number) - int(b.Number)
	})
	schema.byNumber = make(map[protowire.Number]int, len(schema.Fields))
	for i, f := range schema.Fields {
		schema.byNumber[f.Number] = i
	}

	actual, _ := schemas.LoadOrStore(t, schema)
	return actual.(*Schema), nil
}

func classify(f *Field, t reflect.Type) error {
	switch t.Kind() {
	case reflect.String:
		f.kind, f.WireType = kindString, protowire.BytesType
	case reflect.Bool:
		f.kind, f.WireType = kindBool, protowire.VarintType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.kind, f.WireType = kindInt, protowire.VarintType
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.kind, f.WireType = kindUint, protowire.VarintType
	case reflect.Struct:
		elem, err := schemaFor(t)
		if err != nil {
			return err
		}
		f.kind, f.WireType, f.elem = kindMessage, protowire.BytesType, elem
	case reflect.Slice:
		switch t.Elem().Kind() {
		case reflect.Uint8:
			f.kind, f.WireType = kindBytes, protowire.BytesType
		case reflect.Struct:
			elem, err := schemaFor(t.Elem())
			if err != nil {
				return err
			}
			f.kind, f.WireType, f.elem = kindRepeated, protowire.BytesType, elem
		default:
			return fmt.Errorf("slice of %s: %w", t.Elem().Kind(), ErrUnsupportedFieldType)
		}
	default:
		return fmt.Errorf("%s: %w", t.Kind(), ErrUnsupportedFieldType)
	}
	return nil
}
