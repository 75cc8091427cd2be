// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/juju/errors"
)

// Value is an immutable variable value, held as compact canonical JSON text.
// The empty Value renders as JSON null. Two values are equal exactly when
// their canonical text is equal, which is also how the historian compares
// the data column.
type Value string

// ValueOf marshals an arbitrary Go value into a Value.
func ValueOf(v interface{}) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Annotate(err, "encoding value")
	}
	return Value(data), nil
}

// MustValue is ValueOf for values known to encode, e.g. literals in tests
// and descriptor defaults. It panics on encoding failure.
func MustValue(v interface{}) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ParseValue validates and canonicalises a JSON text.
func ParseValue(s string) (Value, error) {
	if s == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return "", errors.NotValidf("JSON value %q", s)
	}
	return Value(buf.String()), nil
}

// FloatValue makes a Value from a float64.
func FloatValue(f float64) Value {
	return Value(strconv.FormatFloat(f, 'g', -1, 64))
}

// IntValue makes a Value from an int64.
func IntValue(i int64) Value {
	return Value(strconv.FormatInt(i, 10))
}

// BoolValue makes a Value from a bool.
func BoolValue(b bool) Value {
	if b {
		return Value("true")
	}
	return Value("false")
}

// StringValue makes a Value holding a JSON string.
func StringValue(s string) Value {
	data, _ := json.Marshal(s)
	return Value(data)
}

// IsEmpty reports whether v holds nothing (marshals as null).
func (v Value) IsEmpty() bool {
	return v == "" || v == "null"
}

// Equal reports canonical-text equality.
func (v Value) Equal(other Value) bool {
	return v == other
}

// String returns the canonical JSON text.
func (v Value) String() string {
	return string(v)
}

// Decode unmarshals the value into out.
func (v Value) Decode(out interface{}) error {
	if v.IsEmpty() {
		return errors.NotFoundf("value")
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return errors.Annotatef(err, "decoding value %q", string(v))
	}
	return nil
}

// Float64 interprets the value as a float64.
func (v Value) Float64() (float64, error) {
	var f float64
	if err := v.Decode(&f); err != nil {
		return 0, errors.Trace(err)
	}
	return f, nil
}

// Int64 interprets the value as an int64.
func (v Value) Int64() (int64, error) {
	var i int64
	if err := v.Decode(&i); err != nil {
		return 0, errors.Trace(err)
	}
	return i, nil
}

// Bool interprets the value as a bool.
func (v Value) Bool() (bool, error) {
	var b bool
	if err := v.Decode(&b); err != nil {
		return false, errors.Trace(err)
	}
	return b, nil
}

// AsString interprets the value as a JSON string.
func (v Value) AsString() (string, error) {
	var s string
	if err := v.Decode(&s); err != nil {
		return "", errors.Trace(err)
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler, emitting the canonical text
// verbatim.
func (v Value) MarshalJSON() ([]byte, error) {
	if v == "" {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

// UnmarshalJSON implements json.Unmarshaler, canonicalising the input.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return errors.Trace(err)
	}
	*v = Value(buf.String())
	return nil
}
