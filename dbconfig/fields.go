package dbconfig

import (
	"fmt"
	"math"
	"strings"

	"github.com/maxpert/topology/systemkeys"
	"github.com/rs/zerolog/log"
)

type fieldSetter func(c *DatabaseConfiguration, value []byte) error

func intField(field func(c *DatabaseConfiguration) *int) fieldSetter {
	return func(c *DatabaseConfiguration, value []byte) error {
		*field(c) = parseInt(value)
		return nil
	}
}

func engineField(field func(c *DatabaseConfiguration) *StoreType) fieldSetter {
	return func(c *DatabaseConfiguration, value []byte) error {
		*field(c) = StoreType(parseInt(value))
		return nil
	}
}

func policyField(slot policySlot) fieldSetter {
	return func(c *DatabaseConfiguration, value []byte) error {
		p, err := c.decoder.Decode(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPolicyDecode, err)
		}
		c.policies[slot] = p
		c.defaulted[slot] = false
		return nil
	}
}

func dcField(field func(c *DatabaseConfiguration) *DcID) fieldSetter {
	return func(c *DatabaseConfiguration, value []byte) error {
		*field(c) = SomeDc(string(value))
		return nil
	}
}

func dcListField(field func(c *DatabaseConfiguration) *[]DcID) fieldSetter {
	return func(c *DatabaseConfiguration, value []byte) error {
		*field(c) = parseDcList(value)
		return nil
	}
}

// fieldTable maps configuration key suffixes to the field they update. Every entry requires a
// recovery to take effect.
var fieldTable = map[string]fieldSetter{
	"initialized": func(c *DatabaseConfiguration, _ []byte) error {
		c.initialized = true
		return nil
	},

	"proxies":                intField(func(c *DatabaseConfiguration) *int { return &c.desiredProxies }),
	"resolvers":              intField(func(c *DatabaseConfiguration) *int { return &c.desiredResolvers }),
	"logs":                   intField(func(c *DatabaseConfiguration) *int { return &c.desiredLogs }),
	"log_replicas":           intField(func(c *DatabaseConfiguration) *int { return &c.logReplicationFactor }),
	"log_anti_quorum":        intField(func(c *DatabaseConfiguration) *int { return &c.logWriteAntiQuorum }),
	"storage_quorum":         intField(func(c *DatabaseConfiguration) *int { return &c.storageQuorum }),
	"storage_replicas":       intField(func(c *DatabaseConfiguration) *int { return &c.storageTeamSize }),
	"auto_proxies":           intField(func(c *DatabaseConfiguration) *int { return &c.autoProxies }),
	"auto_resolvers":         intField(func(c *DatabaseConfiguration) *int { return &c.autoResolvers }),
	"auto_logs":              intField(func(c *DatabaseConfiguration) *int { return &c.autoLogs }),
	"remote_logs":            intField(func(c *DatabaseConfiguration) *int { return &c.desiredRemoteLogs }),
	"remote_log_replicas":    intField(func(c *DatabaseConfiguration) *int { return &c.remoteLogReplicationFactor }),
	"satellite_logs":         intField(func(c *DatabaseConfiguration) *int { return &c.desiredSatelliteLogs }),
	"satellite_log_replicas": intField(func(c *DatabaseConfiguration) *int { return &c.satelliteLogReplicationFactor }),
	"satellite_anti_quorum":  intField(func(c *DatabaseConfiguration) *int { return &c.satelliteLogWriteAntiQuorum }),
	"satellite_usable_dcs":   intField(func(c *DatabaseConfiguration) *int { return &c.satelliteUsableDcs }),
	"log_routers":            intField(func(c *DatabaseConfiguration) *int { return &c.desiredLogRouters }),

	"log_engine":     engineField(func(c *DatabaseConfiguration) *StoreType { return &c.logStoreType }),
	"storage_engine": engineField(func(c *DatabaseConfiguration) *StoreType { return &c.storageStoreType }),

	"primary_dc": dcField(func(c *DatabaseConfiguration) *DcID { return &c.primaryDc }),
	"remote_dc":  dcField(func(c *DatabaseConfiguration) *DcID { return &c.remoteDc }),

	"primary_satellite_dcs": dcListField(func(c *DatabaseConfiguration) *[]DcID { return &c.primarySatelliteDcs }),
	"remote_satellite_dcs":  dcListField(func(c *DatabaseConfiguration) *[]DcID { return &c.remoteSatelliteDcs }),
}

// policyFields maps the placement policy suffixes to their slot.
var policyFields = map[string]policySlot{
	"storage_replication_policy": slotStorage,
	"log_replication_policy":     slotLog,
	"remote_log_policy":          slotRemoteLog,
	"satellite_log_policy":       slotSatelliteLog,
}

func init() {
	for suffix, slot := range policyFields {
		fieldTable[suffix] = policyField(slot)
	}
}

// IsTrackedField returns true if suffix is a configuration field this model parses.
func IsTrackedField(suffix string) bool {
	_, ok := fieldTable[suffix]
	return ok
}

// TryApply parses a single configuration pair into the typed fields. It returns false for keys
// this model does not track (for example exclusion entries). A malformed policy value returns
// an error wrapping ErrPolicyDecode and leaves every field unchanged.
func (c *DatabaseConfiguration) TryApply(key, value []byte) (bool, error) {
	suffix, ok := systemkeys.ConfigSuffix(key)
	if !ok {
		return false, nil
	}

	set, ok := fieldTable[suffix]
	if !ok {
		return false, nil
	}

	if err := set(c, value); err != nil {
		return false, fmt.Errorf("%s: %w", suffix, err)
	}
	return true, nil
}

// CheckValue returns the error Set(key, value) would fail with, without changing anything.
func (c *DatabaseConfiguration) CheckValue(key, value []byte) error {
	suffix, ok := systemkeys.ConfigSuffix(key)
	if !ok {
		return nil
	}
	if _, ok := policyFields[suffix]; !ok {
		return nil
	}
	if _, err := c.decoder.Decode(value); err != nil {
		return fmt.Errorf("%s: %w: %v", suffix, ErrPolicyDecode, err)
	}
	return nil
}

// parseInt is deliberately lenient: it reads an optional sign and the leading decimal digits,
// ignoring anything after them, and yields 0 when there are none. Results saturate at the
// 32-bit range.
func parseInt(value []byte) int {
	i := 0
	for i < len(value) && isSpace(value[i]) {
		i++
	}

	neg := false
	if i < len(value) && (value[i] == '+' || value[i] == '-') {
		neg = value[i] == '-'
		i++
	}

	start := i
	var n int64
	for ; i < len(value) && value[i] >= '0' && value[i] <= '9'; i++ {
		if n <= math.MaxInt32 {
			n = n*10 + int64(value[i]-'0')
		}
	}

	if neg {
		n = -n
	}
	switch {
	case n > math.MaxInt32:
		n = math.MaxInt32
	case n < math.MinInt32:
		n = math.MinInt32
	}

	if start == i || i != len(value) {
		log.Debug().Str("value", printable(string(value))).Int64("parsed", n).Msg("Lenient integer parse")
	}
	return int(n)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// parseDcList splits on ','. The result always has at least one element; empty input and
// consecutive commas produce empty identifiers.
func parseDcList(value []byte) []DcID {
	parts := strings.Split(string(value), ",")
	dcs := make([]DcID, 0, len(parts))
	for _, p := range parts {
		dcs = append(dcs, SomeDc(p))
	}
	return dcs
}

// printable renders bytes the way status output expects: printable ASCII verbatim, backslash
// doubled, everything else as \xHH.
func printable(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\':
			b.WriteString(`\\`)
		case ch >= 32 && ch < 127:
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, `\x%02x`, ch)
		}
	}
	return b.String()
}
