package wire

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes every schema field of msg in field-number order. Zero
// values are written too, matching what the gateway expects.
func Marshal(msg any) ([]byte, error) {
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("marshal %T: %w", msg, ErrUnsupportedFieldType)
	}

	schema, err := schemaFor(v.Type())
	if err != nil {
		return nil, err
	}
	return schema.appendTo(nil, v), nil
}

// Unmarshal decodes body into the struct pointed to by msg. Unknown fields
// and fields whose wire type does not match the schema are skipped.
func Unmarshal(body []byte, msg any) error {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal into %T: %w", msg, ErrUnsupportedFieldType)
	}
	v = v.Elem()

	schema, err := schemaFor(v.Type())
	if err != nil {
		return err
	}
	if err := schema.decode(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", v.Type().Name(), err)
	}
	return nil
}

func (s *Schema) appendTo(b []byte, v reflect.Value) []byte {
	for _, f := range s.Fields {
		fv := v.Field(f.index)
		switch f.kind {
		case kindString:
			b = protowire.AppendTag(b, f.Number, protowire.BytesType)
			b = protowire.AppendString(b, fv.String())
		case kindBytes:
			b = protowire.AppendTag(b, f.Number, protowire.BytesType)
			b = protowire.AppendBytes(b, fv.Bytes())
		case kindBool:
			b = protowire.AppendTag(b, f.Number, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeBool(fv.Bool()))
		case kindInt:
			b = protowire.AppendTag(b, f.Number, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(fv.Int()))
		case kindUint:
			b = protowire.AppendTag(b, f.Number, protowire.VarintType)
			b = protowire.AppendVarint(b, fv.Uint())
		case kindMessage:
			b = protowire.AppendTag(b, f.Number, protowire.BytesType)
			b = protowire.AppendBytes(b, f.elem.appendTo(nil, fv))
		case kindRepeated:
			for i := 0; i < fv.Len(); i++ {
				b = protowire.AppendTag(b, f.Number, protowire.BytesType)
				b = protowire.AppendBytes(b, f.elem.appendTo(nil, fv.Index(i)))
			}
		}
	}
	return b
}

func (s *Schema) decode(b []byte, v reflect.Value) error {
	for len(b) > 0 {
		tag, n, err := consumeVarint(b)
		if err != nil {
			return fmt.Errorf("tag: %w", err)
		}
		b = b[n:]

		num, typ := protowire.DecodeTag(tag)
		if num < protowire.MinValidNumber {
			return fmt.Errorf("tag %d: %w", tag, ErrInvalidFieldNumber)
		}

		switch typ {
		case protowire.VarintType:
			raw, n, err := consumeVarint(b)
			if err != nil {
				return fmt.Errorf("field %d: %w", num, err)
			}
			b = b[n:]
			if f, ok := s.match(num, typ); ok {
				setVarint(v.Field(f.index), f, raw)
			}
		case protowire.BytesType:
			payload, n, err := consumeBytes(b)
			if err != nil {
				return fmt.Errorf("field %d: %w", num, err)
			}
			b = b[n:]
			if f, ok := s.match(num, typ); ok {
				if err := setBytes(v.Field(f.index), f, payload); err != nil {
					return fmt.Errorf("field %d: %w", num, err)
				}
			}
		default:
			return fmt.Errorf("field %d wire type %d: %w", num, typ, ErrUnsupportedWireType)
		}
	}
	return nil
}

func (s *Schema) match(num protowire.Number, typ protowire.Type) (Field, bool) {
	f, ok := s.Lookup(num)
	if !ok || f.WireType != typ {
		return Field{}, false
	}
	return f, true
}

func setVarint(fv reflect.Value, f Field, raw uint64) {
	switch f.kind {
	case kindBool:
		fv.SetBool(protowire.DecodeBool(raw))
	case kindInt:
		fv.SetInt(int64(raw))
	case kindUint:
		fv.SetUint(raw)
	}
}

func setBytes(fv reflect.Value, f Field, payload []byte) error {
	switch f.kind {
	case kindString:
		fv.SetString(string(payload))
	case kindBytes:
		fv.SetBytes(append([]byte(nil), payload...))
	case kindMessage:
		return f.elem.decode(payload, fv)
	case kindRepeated:
		elem := reflect.New(f.elem.Type).Elem()
		if err := f.elem.decode(payload, elem); err != nil {
			return err
		}
		fv.Set(reflect.Append(fv, elem))
	}
	return nil
}

func consumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		if errors.Is(protowire.ParseError(n), io.ErrUnexpectedEOF) {
			return 0, 0, ErrTruncatedVarint
		}
		return 0, 0, ErrVarintOverflow
	}
	return v, n, nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	length, n, err := consumeVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if length > uint64(len(b)-n) {
		return nil, 0, ErrTruncatedField
	}
	end := n + int(length)
	return b[n:end], end, nil
}
