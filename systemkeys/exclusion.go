package systemkeys

import (
	"bytes"
	"fmt"
	"net/netip"
)

// AddressExclusion names either a whole machine (Port == 0) or a single process on it.
type AddressExclusion struct {
	IP   netip.Addr
	Port uint16
}

// ExcludeMachine excludes every process on ip.
func ExcludeMachine(ip netip.Addr) AddressExclusion {
	return AddressExclusion{IP: ip}
}

// ExcludeProcess excludes only the process listening on addr.
func ExcludeProcess(addr netip.AddrPort) AddressExclusion {
	return AddressExclusion{IP: addr.Addr(), Port: addr.Port()}
}

// IsWholeMachine returns true if the exclusion covers every port on the machine.
func (a AddressExclusion) IsWholeMachine() bool {
	return a.Port == 0
}

// IsValid returns false for exclusions decoded from malformed keys.
func (a AddressExclusion) IsValid() bool {
	return a.IP.IsValid()
}

// Excludes returns true if addr falls under this exclusion.
func (a AddressExclusion) Excludes(addr netip.AddrPort) bool {
	if a.IP != addr.Addr() {
		return false
	}
	return a.IsWholeMachine() || a.Port == addr.Port()
}

func (a AddressExclusion) String() string {
	if a.IsWholeMachine() {
		return a.IP.String()
	}
	return netip.AddrPortFrom(a.IP, a.Port).String()
}

// Compare orders exclusions by address, whole-machine entries first.
func (a AddressExclusion) Compare(b AddressExclusion) int {
	if c := a.IP.Compare(b.IP); c != 0 {
		return c
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	}
	return 0
}

// ParseAddressExclusion accepts "ip" or "ip:port" ("[v6]:port" for IPv6).
func ParseAddressExclusion(s string) (AddressExclusion, error) {
	if ip, err := netip.ParseAddr(s); err == nil {
		return ExcludeMachine(ip), nil
	}

	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return AddressExclusion{}, fmt.Errorf("invalid exclusion address %q: %w", s, err)
	}
	if ap.Port() == 0 {
		return ExcludeMachine(ap.Addr()), nil
	}
	return ExcludeProcess(ap), nil
}

// EncodeExcludedServersKey returns the key marking a as excluded.
func EncodeExcludedServersKey(a AddressExclusion) []byte {
	return []byte(ExcludedServersPrefix + a.String())
}

// DecodeExcludedServersKey parses an exclusion key. Malformed keys decode to an invalid
// exclusion rather than an error so that listing can skip them.
func DecodeExcludedServersKey(key []byte) AddressExclusion {
	if !bytes.HasPrefix(key, []byte(ExcludedServersPrefix)) {
		return AddressExclusion{}
	}
	a, err := ParseAddressExclusion(string(key[len(ExcludedServersPrefix):]))
	if err != nil {
		return AddressExclusion{}
	}
	return a
}
