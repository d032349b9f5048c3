package model

import (
	"bytes"
	"encoding/json"
)

// NullableString is a JSON field with three states: absent, explicit null,
// and a value. The zero value is absent.
type NullableString struct {
	Set   bool
	Null  bool
	Value string
}

// Null returns an explicitly-null NullableString.
func Null() NullableString {
	return NullableString{Set: true, Null: true}
}

// Value returns a NullableString holding v.
func Value(v string) NullableString {
	return NullableString{Set: true, Value: v}
}

// IsValue reports whether a non-null value was provided.
func (n NullableString) IsValue() bool {
	return n.Set && !n.Null
}

// Ptr returns nil for null or absent, and a pointer to the value otherwise.
func (n NullableString) Ptr() *string {
	if !n.IsValue() {
		return nil
	}
	v := n.Value
	return &v
}

// UnmarshalJSON is only invoked when the key is present in the document,
// which is what lets absent and null differ.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Null = true
		n.Value = ""
		return nil
	}
	n.Null = false
	return json.Unmarshal(data, &n.Value)
}

// MarshalJSON renders absent and null both as null.
func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.IsValue() {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}
