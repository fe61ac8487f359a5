// Package encoding implements the AMQP 0-9-1 primitive data types:
// short and long strings, field tables and field values.
package encoding

import (
	"fmt"
	"math"
	"time"

	"github.com/leporidae/amqp091/internal/buffer"
)

// Table is an AMQP field table. Keys are field names, values are one of
// the field value types accepted by WriteValue.
type Table map[string]any

// Decimal is the AMQP decimal field value.
type Decimal struct {
	Scale uint8
	Value int32
}

// ErrInvalid is returned when a value cannot be decoded or encoded as an
// AMQP field.
type ErrInvalid struct {
	What string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("encoding: invalid %s", e.What)
}

// WriteShortString writes a string with a single length byte prefix.
func WriteShortString(wr *buffer.Buffer, s string) error {
	if len(s) > math.MaxUint8 {
		return &ErrInvalid{What: "short string: too long"}
	}
	wr.WriteByte(uint8(len(s)))
	wr.WriteString(s)
	return nil
}

// ReadShortString reads a string with a single length byte prefix.
func ReadShortString(r *buffer.Buffer) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	buf, ok := r.Next(int64(n))
	if !ok {
		return "", &ErrInvalid{What: "short string: truncated"}
	}
	return string(buf), nil
}

// WriteLongString writes a byte sequence with a four byte length prefix.
func WriteLongString(wr *buffer.Buffer, s []byte) error {
	if uint64(len(s)) > math.MaxUint32 {
		return &ErrInvalid{What: "long string: too long"}
	}
	wr.WriteUint32(uint32(len(s)))
	wr.Write(s)
	return nil
}

// ReadLongString reads a byte sequence with a four byte length prefix.
func ReadLongString(r *buffer.Buffer) ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	buf, ok := r.Next(int64(n))
	if !ok {
		return nil, &ErrInvalid{What: "long string: truncated"}
	}
	return append([]byte(nil), buf...), nil
}

// WriteTable writes a field table with a four byte length prefix.
func WriteTable(wr *buffer.Buffer, t Table) error {
	var body buffer.Buffer
	for k, v := range t {
		if err := WriteShortString(&body, k); err != nil {
			return err
		}
		if err := WriteValue(&body, v); err != nil {
			return err
		}
	}
	return WriteLongString(wr, body.Bytes())
}

// ReadTable reads a field table with a four byte length prefix.
func ReadTable(r *buffer.Buffer) (Table, error) {
	body, err := ReadLongString(r)
	if err != nil {
		return nil, err
	}
	t := Table{}
	br := buffer.New(body)
	for br.Len() > 0 {
		k, err := ReadShortString(br)
		if err != nil {
			return nil, err
		}
		v, err := ReadValue(br)
		if err != nil {
			return nil, err
		}
		t[k] = v
	}
	return t, nil
}

// WriteValue writes a single field value with its type tag.
func WriteValue(wr *buffer.Buffer, v any) error {
	switch v := v.(type) {
	case nil:
		wr.WriteByte('V')
	case bool:
		wr.WriteByte('t')
		if v {
			wr.WriteByte(1)
		} else {
			wr.WriteByte(0)
		}
	case int8:
		wr.WriteByte('b')
		wr.WriteByte(uint8(v))
	case uint8:
		wr.WriteByte('B')
		wr.WriteByte(v)
	case int16:
		wr.WriteByte('s')
		wr.WriteUint16(uint16(v))
	case uint16:
		wr.WriteByte('u')
		wr.WriteUint16(v)
	case int32:
		wr.WriteByte('I')
		wr.WriteUint32(uint32(v))
	case uint32:
		wr.WriteByte('i')
		wr.WriteUint32(v)
	case int64:
		wr.WriteByte('l')
		wr.WriteUint64(uint64(v))
	case int:
		wr.WriteByte('l')
		wr.WriteUint64(uint64(v))
	case float32:
		wr.WriteByte('f')
		wr.WriteUint32(math.Float32bits(v))
	case float64:
		wr.WriteByte('d')
		wr.WriteUint64(math.Float64bits(v))
	case Decimal:
		wr.WriteByte('D')
		wr.WriteByte(v.Scale)
		wr.WriteUint32(uint32(v.Value))
	case string:
		wr.WriteByte('S')
		return WriteLongString(wr, []byte(v))
	case []byte:
		wr.WriteByte('x')
		return WriteLongString(wr, v)
	case time.Time:
		wr.WriteByte('T')
		wr.WriteUint64(uint64(v.Unix()))
	case Table:
		wr.WriteByte('F')
		return WriteTable(wr, v)
	case []any:
		wr.WriteByte('A')
		var body buffer.Buffer
		for _, item := range v {
			if err := WriteValue(&body, item); err != nil {
				return err
			}
		}
		return WriteLongString(wr, body.Bytes())
	default:
		return &ErrInvalid{What: fmt.Sprintf("field value type %T", v)}
	}
	return nil
}

// ReadValue reads a single tagged field value.
func ReadValue(r *buffer.Buffer) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 'V':
		return nil, nil
	case 't':
		b, err := r.ReadByte()
		return b != 0, err
	case 'b':
		b, err := r.ReadByte()
		return int8(b), err
	case 'B':
		return r.ReadByte()
	case 's':
		n, err := r.ReadUint16()
		return int16(n), err
	case 'u':
		return r.ReadUint16()
	case 'I':
		n, err := r.ReadUint32()
		return int32(n), err
	case 'i':
		return r.ReadUint32()
	case 'l':
		n, err := r.ReadUint64()
		return int64(n), err
	case 'f':
		n, err := r.ReadUint32()
		return math.Float32frombits(n), err
	case 'd':
		n, err := r.ReadUint64()
		return math.Float64frombits(n), err
	case 'D':
		scale, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		val, err := r.ReadUint32()
		return Decimal{Scale: scale, Value: int32(val)}, err
	case 'S':
		s, err := ReadLongString(r)
		return string(s), err
	case 'x':
		return ReadLongString(r)
	case 'T':
		n, err := r.ReadUint64()
		return time.Unix(int64(n), 0), err
	case 'F':
		return ReadTable(r)
	case 'A':
		body, err := ReadLongString(r)
		if err != nil {
			return nil, err
		}
		var items []any
		br := buffer.New(body)
		for br.Len() > 0 {
			item, err := ReadValue(br)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, &ErrInvalid{What: fmt.Sprintf("field value tag %q", tag)}
	}
}
