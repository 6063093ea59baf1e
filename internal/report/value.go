// Package report turns identities and attendance records into generic tables
// of tagged values for listing and export.
package report

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindTime
	KindVector
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindVector:
		return "vector"
	case KindList:
		return "list"
	}
	return "null"
}

// Value is one cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Str    string
	Num    float64
	Time   time.Time
	Vector []float32
	List   []Value
}

func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value    { return Value{Kind: KindNumber, Num: n} }
func Int(n int64) Value         { return Value{Kind: KindNumber, Num: float64(n)} }
func Time(t time.Time) Value    { return Value{Kind: KindTime, Time: t} }
func Vector(v []float32) Value  { return Value{Kind: KindVector, Vector: v} }
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }
func Bool(b bool) Value         { return String(strconv.FormatBool(b)) }
func Null() Value               { return Value{} }

// OptionalString is Null for the empty string.
func OptionalString(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

// Text renders the value for a plain-text table.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindVector:
		return "[" + strconv.Itoa(len(v.Vector)) + "d]"
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ", ")
	}
	return "-"
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindTime:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	case KindVector:
		if v.Vector == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Vector)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return []byte("null"), nil
}
