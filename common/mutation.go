// Package common provides shared types used across the codebase.
// HARD RULE: MutationType is defined HERE and ONLY HERE.
// The log, the pebble store and the configuration model all use this type directly.
package common

import "fmt"

// MutationType categorizes entries of the commit log for routing.
type MutationType int

const (
	SetValue MutationType = iota // 0 - single key set
	ClearRange
	AddValue
	And
	Or
	Xor
	Max
	Min
	ByteMin
	ByteMax
)

var mutationTypeNames = map[MutationType]string{
	SetValue:   "SetValue",
	ClearRange: "ClearRange",
	AddValue:   "AddValue",
	And:        "And",
	Or:         "Or",
	Xor:        "Xor",
	Max:        "Max",
	Min:        "Min",
	ByteMin:    "ByteMin",
	ByteMax:    "ByteMax",
}

func (t MutationType) String() string {
	if name, ok := mutationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MutationType(%d)", int(t))
}

// IsSingleKey returns true if the mutation touches exactly the key in Param1.
func (t MutationType) IsSingleKey() bool {
	return t != ClearRange
}

// Mutation is one entry of the ordered commit stream.
// For ClearRange, Param1 and Param2 are the begin and end of the range.
// For every other type, Param1 is the key and Param2 the operand.
type Mutation struct {
	Type   MutationType `msgpack:"t"`
	Param1 []byte       `msgpack:"p1"`
	Param2 []byte       `msgpack:"p2"`
}

// NewSet builds a SetValue mutation.
func NewSet(key, value []byte) Mutation {
	return Mutation{Type: SetValue, Param1: key, Param2: value}
}

// NewClearRange builds a ClearRange mutation over [begin, end). A nil end clears through the
// end of the key space, an empty non-nil end clears nothing; prefer NewClearToEnd for the former.
func NewClearRange(begin, end []byte) Mutation {
	return Mutation{Type: ClearRange, Param1: begin, Param2: end}
}

// NewClearToEnd builds a ClearRange mutation over every key at or after begin.
func NewClearToEnd(begin []byte) Mutation {
	return Mutation{Type: ClearRange, Param1: begin}
}

// Range returns the cleared range for ClearRange mutations. A nil Param2 gives an unbounded range.
func (m Mutation) Range() KeyRange {
	return KeyRange{Begin: m.Param1, End: m.Param2}
}

func (m Mutation) String() string {
	if m.Type == ClearRange {
		return fmt.Sprintf("%s[%q, %q)", m.Type, m.Param1, m.Param2)
	}
	return fmt.Sprintf("%s(%q=%q)", m.Type, m.Param1, m.Param2)
}
