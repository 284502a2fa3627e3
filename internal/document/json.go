package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
)

// isoMillis is the layout JavaScript's Date.prototype.toISOString produces,
// which is what graphing clients expect for instants.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ParseJSON decodes a single JSON value, keeping object keys in source order.
func ParseJSON(data []byte) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("empty JSON input")
	}
	// jsonparser scans leniently; trailing commas, leading zeros and bad
	// UTF-8 would otherwise decode.
	if !json.Valid(trimmed) {
		return Value{}, fmt.Errorf("decode JSON: invalid")
	}
	raw, typ, end, err := jsonparser.Get(trimmed)
	if err != nil {
		return Value{}, fmt.Errorf("decode JSON: %w", err)
	}
	if rest := bytes.TrimSpace(trimmed[end:]); len(rest) > 0 {
		return Value{}, fmt.Errorf("decode JSON: unexpected data after value at offset %d", end)
	}
	return decode(raw, typ)
}

func decode(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, fmt.Errorf("decode boolean %q: %w", raw, err)
		}
		return Bool(b), nil
	case jsonparser.Number:
		return decodeNumber(raw)
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("decode string: %w", err)
		}
		return String(s), nil
	case jsonparser.Array:
		return decodeArray(raw)
	case jsonparser.Object:
		return decodeObject(raw)
	default:
		return Value{}, fmt.Errorf("decode JSON: unexpected token %q", truncate(raw, 32))
	}
}

func decodeNumber(raw []byte) (Value, error) {
	s := string(raw)
	if !bytes.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("decode number %q: invalid", s)
	}
	return Float(f), nil
}

func decodeArray(raw []byte) (Value, error) {
	items := []Value{}
	var firstErr error
	_, err := jsonparser.ArrayEach(raw, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if firstErr != nil {
			return
		}
		if err != nil {
			firstErr = err
			return
		}
		v, err := decode(value, typ)
		if err != nil {
			firstErr = err
			return
		}
		items = append(items, v)
	})
	if firstErr != nil {
		return Value{}, firstErr
	}
	if err != nil {
		return Value{}, fmt.Errorf("decode array: %w", err)
	}
	return Array(items...), nil
}

func decodeObject(raw []byte) (Value, error) {
	d := New()
	err := jsonparser.ObjectEach(raw, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("decode key %q: %w", key, err)
		}
		v, err := decode(value, typ)
		if err != nil {
			return err
		}
		d.Set(k, v)
		return nil
	})
	if err != nil {
		return Value{}, fmt.Errorf("decode object: %w", err)
	}
	return Doc(d), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler, keeping key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return Doc(d).MarshalJSON()
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		return writeString(buf, v.s)
	case KindTime:
		return writeString(buf, v.t.UTC().Format(isoMillis))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDocument:
		buf.WriteByte('{')
		for i, f := range v.doc.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("encode: unknown kind %s", v.kind)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Millis returns t as milliseconds since the Unix epoch.
func Millis(t time.Time) int64 { return t.UnixMilli() }
