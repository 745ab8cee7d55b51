// Package encoding provides centralized serialization/deserialization for the configuration
// service. ALL msgpack operations MUST go through this package to ensure consistent behavior.
//
// Thread Safety: Marshal and Unmarshal are safe for concurrent use.
//
// Strictness: Unmarshal rejects trailing bytes. Placement policies are persisted as values in
// the replicated key space, so a value that decodes "mostly" must still be treated as corrupt.
package encoding

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrTrailingData is returned when a buffer holds more than one encoded value.
var ErrTrailingData = errors.New("encoding: trailing data after value")

// Marshal encodes a value to msgpack format.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// Sorted map keys keep encodings byte-stable: equal values produce equal bytes.
	enc.SetSortMapKeys(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data into v.
func Unmarshal(data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	if err := dec.Decode(v); err != nil {
		return err
	}
	if r.Len() != 0 {
		return ErrTrailingData
	}
	return nil
}
