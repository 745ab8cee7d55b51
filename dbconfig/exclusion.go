package dbconfig

import (
	"net/netip"
	"slices"

	"github.com/maxpert/topology/systemkeys"
)

// IsExcludedServer returns true if either the exact process address or its whole machine is
// administratively excluded.
func (c *DatabaseConfiguration) IsExcludedServer(addr netip.AddrPort) bool {
	if _, ok := c.store.Get(systemkeys.EncodeExcludedServersKey(systemkeys.ExcludeProcess(addr))); ok {
		return true
	}
	_, ok := c.store.Get(systemkeys.EncodeExcludedServersKey(systemkeys.ExcludeMachine(addr.Addr())))
	return ok
}

// ExcludedServers lists every valid exclusion, sorted. Not a pure read: it collapses the
// mutable overlay into a snapshot first.
func (c *DatabaseConfiguration) ExcludedServers() []systemkeys.AddressExclusion {
	c.store.Collapse()

	var addrs []systemkeys.AddressExclusion
	c.store.Range(systemkeys.ExcludedServersKeys, func(key, _ []byte) bool {
		if a := systemkeys.DecodeExcludedServersKey(key); a.IsValid() {
			addrs = append(addrs, a)
		}
		return true
	})

	slices.SortFunc(addrs, systemkeys.AddressExclusion.Compare)
	return slices.CompactFunc(addrs, func(a, b systemkeys.AddressExclusion) bool {
		return a.Compare(b) == 0
	})
}
