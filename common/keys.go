package common

import (
	"bytes"
	"fmt"
)

// KeyValue is one entry of the configuration key space.
type KeyValue struct {
	Key   []byte `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

// KeyRange is the half-open interval [Begin, End).
//
// A nil End is unbounded. A non-nil empty End ([]byte{}) sorts before every key, so such a
// range is always empty.
type KeyRange struct {
	Begin []byte
	End   []byte
}

// SingleKeyRange returns the range containing exactly key.
func SingleKeyRange(key []byte) KeyRange {
	end := make([]byte, len(key)+1)
	copy(end, key)
	return KeyRange{Begin: key, End: end}
}

// PrefixRange returns the range of every key starting with prefix.
func PrefixRange(prefix []byte) KeyRange {
	return KeyRange{Begin: prefix, End: PrefixEnd(prefix)}
}

// PrefixEnd returns the first key after every key starting with prefix.
// An all-0xFF prefix has no successor; nil is returned and treated as unbounded.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Empty returns true if the range contains no keys.
func (r KeyRange) Empty() bool {
	return r.End != nil && bytes.Compare(r.Begin, r.End) >= 0
}

// Contains returns true if key lies in [Begin, End).
func (r KeyRange) Contains(key []byte) bool {
	if bytes.Compare(key, r.Begin) < 0 {
		return false
	}
	return r.End == nil || bytes.Compare(key, r.End) < 0
}

// Intersects returns true if the two ranges share at least one key.
func (r KeyRange) Intersects(o KeyRange) bool {
	return !r.Intersect(o).Empty()
}

// Intersect returns the overlap of the two ranges, which may be empty.
func (r KeyRange) Intersect(o KeyRange) KeyRange {
	begin := r.Begin
	if bytes.Compare(o.Begin, begin) > 0 {
		begin = o.Begin
	}

	end := r.End
	switch {
	case end == nil:
		end = o.End
	case o.End != nil && bytes.Compare(o.End, end) < 0:
		end = o.End
	}

	return KeyRange{Begin: begin, End: end}
}

func (r KeyRange) String() string {
	return fmt.Sprintf("[%q, %q)", r.Begin, r.End)
}
