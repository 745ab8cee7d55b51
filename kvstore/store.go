// Package kvstore holds the raw key/value pairs of the configuration namespace.
//
// A Store is always in exactly one of two states:
//
//   - StateSnapshot: an immutable, key-sorted slice searched with binary search. This is what a
//     bulk recovery read produces and what read-mostly paths prefer.
//   - StateOverlay: an ordered skip list map that accepts edits. It is materialized from the
//     snapshot on the first edit and is the sole source of truth until Collapse.
//
// Transitions are explicit (Materialize, Collapse) and observable through State.
//
// Thread Safety: a Store has a single owner. Concurrent use requires external locking.
package kvstore

import (
	"bytes"
	"slices"

	"github.com/maxpert/topology/common"
	"github.com/zhangyunhao116/skipmap"
)

// State identifies the live representation of a Store.
type State int

const (
	StateSnapshot State = iota
	StateOverlay
)

func (s State) String() string {
	if s == StateOverlay {
		return "overlay"
	}
	return "snapshot"
}

type overlayMap = skipmap.FuncMap[string, []byte]

// Store is the dual raw/mutable representation of the configuration namespace.
type Store struct {
	raw     []common.KeyValue
	overlay *overlayMap
}

// New returns an empty store in snapshot state.
func New() *Store {
	return &Store{}
}

// NewSnapshot returns a store in snapshot state holding kvs. The input is copied; unsorted input
// is sorted and for duplicate keys the last pair wins.
func NewSnapshot(kvs []common.KeyValue) *Store {
	raw := make([]common.KeyValue, len(kvs))
	for i, kv := range kvs {
		raw[i] = common.KeyValue{Key: clone(kv.Key), Value: clone(kv.Value)}
	}

	slices.SortStableFunc(raw, func(a, b common.KeyValue) int {
		return bytes.Compare(a.Key, b.Key)
	})

	// Keep the last of each run of equal keys
	out := raw[:0]
	for i, kv := range raw {
		if i+1 < len(raw) && bytes.Equal(kv.Key, raw[i+1].Key) {
			continue
		}
		out = append(out, kv)
	}

	return &Store{raw: out}
}

func newOverlay() *overlayMap {
	return skipmap.NewFunc[string, []byte](func(a, b string) bool {
		return a < b
	})
}

// State reports which representation is live.
func (s *Store) State() State {
	if s.overlay != nil {
		return StateOverlay
	}
	return StateSnapshot
}

// Len returns the number of keys.
func (s *Store) Len() int {
	if s.overlay != nil {
		return s.overlay.Len()
	}
	return len(s.raw)
}

// Get returns the value stored at key. The returned slice must not be modified.
func (s *Store) Get(key []byte) ([]byte, bool) {
	if s.overlay != nil {
		return s.overlay.Load(string(key))
	}

	i, found := s.search(key)
	if !found {
		return nil, false
	}
	return s.raw[i].Value, true
}

func (s *Store) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(s.raw, key, func(kv common.KeyValue, k []byte) int {
		return bytes.Compare(kv.Key, k)
	})
}

// Materialize switches to overlay state, copying every snapshot pair into the ordered map and
// discarding the snapshot. No-op in overlay state.
func (s *Store) Materialize() {
	if s.overlay != nil {
		return
	}

	m := newOverlay()
	for _, kv := range s.raw {
		m.Store(string(kv.Key), kv.Value)
	}
	s.overlay = m
	s.raw = nil
}

// Collapse switches to snapshot state, writing the overlay out in key order and discarding it.
// No-op in snapshot state.
func (s *Store) Collapse() {
	if s.overlay == nil {
		return
	}

	raw := make([]common.KeyValue, 0, s.overlay.Len())
	s.overlay.Range(func(k string, v []byte) bool {
		raw = append(raw, common.KeyValue{Key: []byte(k), Value: v})
		return true
	})
	s.raw = raw
	s.overlay = nil
}

// Set stores value at key, materializing the overlay first.
func (s *Store) Set(key, value []byte) {
	s.Materialize()
	s.overlay.Store(string(key), clone(value))
}

// ClearRange removes every key in r, materializing the overlay first. Returns the number of
// keys removed.
func (s *Store) ClearRange(r common.KeyRange) int {
	s.Materialize()
	if r.Empty() {
		return 0
	}

	var doomed []string
	s.overlay.Range(func(k string, _ []byte) bool {
		key := []byte(k)
		if r.End != nil && bytes.Compare(key, r.End) >= 0 {
			return false
		}
		if r.Contains(key) {
			doomed = append(doomed, k)
		}
		return true
	})

	for _, k := range doomed {
		s.overlay.Delete(k)
	}
	return len(doomed)
}

// Range calls fn for every pair in r in key order until fn returns false. The store must not
// be modified from fn.
func (s *Store) Range(r common.KeyRange, fn func(key, value []byte) bool) {
	if s.overlay != nil {
		s.overlay.Range(func(k string, v []byte) bool {
			key := []byte(k)
			if r.End != nil && bytes.Compare(key, r.End) >= 0 {
				return false
			}
			if bytes.Compare(key, r.Begin) < 0 {
				return true
			}
			return fn(key, v)
		})
		return
	}

	i, _ := s.search(r.Begin)
	for ; i < len(s.raw); i++ {
		kv := s.raw[i]
		if r.End != nil && bytes.Compare(kv.Key, r.End) >= 0 {
			return
		}
		if !fn(kv.Key, kv.Value) {
			return
		}
	}
}

// All calls fn for every pair in key order until fn returns false.
func (s *Store) All(fn func(key, value []byte) bool) {
	s.Range(common.KeyRange{}, fn)
}

// Snapshot collapses the store and returns its sorted pairs. The returned slice is shared with
// the store and must not be modified.
func (s *Store) Snapshot() []common.KeyValue {
	s.Collapse()
	return s.raw
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return bytes.Clone(b)
}
