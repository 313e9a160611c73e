package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the dynamic storage class of a single cell.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a single SQL value. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func Null() Value { return Value{} }

func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

func Real(f float64) Value { return Value{kind: KindReal, f: f} }

func Text(s string) Value { return Value{kind: KindText, s: s} }

func Blob(b []byte) Value { return Value{kind: KindBlob, b: append([]byte{}, b...)} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload and whether v holds an integer.
func (v Value) Int64() (int64, bool) {
	return v.i, v.kind == KindInteger
}

// Float64 returns the real payload and whether v holds a real.
func (v Value) Float64() (float64, bool) {
	return v.f, v.kind == KindReal
}

// Text returns the text payload and whether v holds text.
func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindText
}

// Bytes returns the blob payload and whether v holds a blob.
func (v Value) Bytes() ([]byte, bool) {
	return v.b, v.kind == KindBlob
}

// Any returns v as one of nil, int64, float64, string or []byte. These are
// exactly the types accepted by database/sql/driver.Value.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	}
	return nil
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindReal:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindText:
		return v.s == o.s
	case KindBlob:
		return bytes.Equal(v.b, o.b)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return fmt.Sprintf("x'%X'", v.b)
	}
	return "NULL"
}

// FromAny converts a Go value into a Value. Booleans become 0/1 and
// time.Time becomes RFC3339Nano text, matching what SQLite would store.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case int:
		return Integer(int64(t)), nil
	case int8:
		return Integer(int64(t)), nil
	case int16:
		return Integer(int64(t)), nil
	case int32:
		return Integer(int64(t)), nil
	case int64:
		return Integer(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Integer(int64(t)), nil
	case uint16:
		return Integer(int64(t)), nil
	case uint32:
		return Integer(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Real(float64(t)), nil
	case float64:
		return Real(t), nil
	case bool:
		if t {
			return Integer(1), nil
		}
		return Integer(0), nil
	case string:
		return Text(t), nil
	case []byte:
		if t == nil {
			return Null(), nil
		}
		return Blob(t), nil
	case time.Time:
		return Text(t.Format(time.RFC3339Nano)), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("unsupported number %q: %w", t, err)
		}
		return Real(f), nil
	}
	return Value{}, fmt.Errorf("unsupported parameter type %T", x)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("integer %d overflows int64", u)
	}
	return Integer(int64(u)), nil
}

// Values converts a slice of Go values, reporting the index of the first
// value which cannot be represented.
func Values(args []any) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		v, err := FromAny(a)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

type wireValue struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Base64 string          `json:"base64,omitempty"`
}

// MarshalJSON encodes v in the pipeline wire format. Integers are carried as
// strings so that 64-bit values survive JSON number handling.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.kind.String()}
	switch v.kind {
	case KindInteger:
		w.Value, _ = json.Marshal(strconv.FormatInt(v.i, 10))
	case KindReal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("cannot encode non-finite float %v", v.f)
		}
		w.Value, _ = json.Marshal(v.f)
	case KindText:
		w.Value, _ = json.Marshal(v.s)
	case KindBlob:
		w.Base64 = base64.StdEncoding.EncodeToString(v.b)
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "null":
		*v = Null()
	case "integer":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			// Tolerate bare numbers.
			var n json.Number
			if err2 := json.Unmarshal(w.Value, &n); err2 != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			s = n.String()
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		*v = Integer(i)
	case "float":
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return fmt.Errorf("invalid float value: %w", err)
		}
		*v = Real(f)
	case "text":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("invalid text value: %w", err)
		}
		*v = Text(s)
	case "blob":
		b, err := base64.StdEncoding.DecodeString(w.Base64)
		if err != nil {
			return fmt.Errorf("invalid blob value: %w", err)
		}
		*v = Value{kind: KindBlob, b: b}
	default:
		return fmt.Errorf("unknown value type %q", w.Type)
	}
	return nil
}
