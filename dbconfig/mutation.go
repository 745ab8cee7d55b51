package dbconfig

import (
	"fmt"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/kvstore"
	"github.com/maxpert/topology/systemkeys"
	"github.com/rs/zerolog/log"
)

// Get returns the raw value of key.
func (c *DatabaseConfiguration) Get(key []byte) ([]byte, bool) {
	return c.store.Get(key)
}

// Set stores value at key and updates the typed fields. It returns true if key is a tracked
// field. A malformed policy value is rejected before anything is stored.
func (c *DatabaseConfiguration) Set(key, value []byte) (bool, error) {
	tracked, err := c.TryApply(key, value)
	if err != nil {
		return false, err
	}

	c.store.Set(key, value)
	if tracked {
		c.SetDefaultReplicationPolicy()
	}
	return tracked, nil
}

// Clear removes every key in r and re-derives all typed fields from the remaining keys. It
// returns true if the configuration was valid before and is not valid afterwards.
func (c *DatabaseConfiguration) Clear(r common.KeyRange) (bool, error) {
	wasValid := c.IsValid()

	removed := c.store.ClearRange(r)
	if err := c.replay(); err != nil {
		return wasValid, fmt.Errorf("replay after clear %s: %w", r, err)
	}

	log.Debug().
		Stringer("range", r).
		Int("removed", removed).
		Int("remaining", c.store.Len()).
		Msg("Replayed configuration after clear")

	return wasValid && !c.IsValid(), nil
}

// ApplyMutation routes one commit-log entry. Single-key sets inside the configuration namespace
// go to Set; clears intersecting the namespace go to Clear on the intersection; everything else
// is ignored. The boolean result reports a valid-to-invalid transition caused by a clear.
func (c *DatabaseConfiguration) ApplyMutation(m common.Mutation) (bool, error) {
	switch m.Type {
	case common.SetValue:
		if systemkeys.InConfigNamespace(m.Param1) {
			_, err := c.Set(m.Param1, m.Param2)
			return false, err
		}
	case common.ClearRange:
		r := m.Range()
		if r.Intersects(systemkeys.ConfigKeys) {
			return c.Clear(r.Intersect(systemkeys.ConfigKeys))
		}
	}
	return false, nil
}

// ToImmutableSnapshot collapses the mutable overlay back into a sorted snapshot. No-op when no
// overlay exists.
func (c *DatabaseConfiguration) ToImmutableSnapshot() {
	c.store.Collapse()
}

// StoreState reports whether the raw pairs are held as a snapshot or as a mutable overlay.
func (c *DatabaseConfiguration) StoreState() kvstore.State {
	return c.store.State()
}

// Snapshot collapses the store and returns every raw pair in key order. The result must not be
// modified.
func (c *DatabaseConfiguration) Snapshot() []common.KeyValue {
	return c.store.Snapshot()
}

// KeyCount returns the number of raw pairs held.
func (c *DatabaseConfiguration) KeyCount() int {
	return c.store.Len()
}
