package dbconfig

import (
	"sort"
	"strconv"
	"strings"

	"github.com/maxpert/topology/policy"
)

// Canonical map keys.
const (
	KeyRedundancyMode          = "redundancy_mode"
	KeyStorageEngine           = "storage_engine"
	KeySatelliteRedundancyMode = "satellite_redundancy_mode"
	KeyRemoteRedundancyMode    = "remote_redundancy_mode"
	KeyPrimaryDc               = "primary_dc"
	KeyRemoteDc                = "remote_dc"
	KeyPrimarySatelliteDcs     = "primary_satellite_dcs"
	KeyRemoteSatelliteDcs      = "remote_satellite_dcs"
	KeyLogs                    = "logs"
	KeyRemoteLogs              = "remote_logs"
	KeySatelliteLogs           = "satellite_logs"
	KeyProxies                 = "proxies"
	KeyResolvers               = "resolvers"
)

// ModeCustom is reported for any combination that matches no named mode.
const ModeCustom = "custom"

// ModeNone is reported for satellite/remote replication that is switched off.
const ModeNone = "none"

// Redundancy modes
const (
	ModeSingle          = "single"
	ModeDouble          = "double"
	ModeTriple          = "triple"
	ModeThreeDatacenter = "three_datacenter"
	ModeThreeDataHall   = "three_data_hall"
	ModeMultiDC         = "multi_dc"
)

// Storage engines
const (
	EngineSSD1   = "ssd-1"
	EngineSSD2   = "ssd-2"
	EngineMemory = "memory"
)

// Satellite redundancy modes
const (
	SatelliteOneSingle = "one_satellite_single"
	SatelliteOneDouble = "one_satellite_double"
	SatelliteOneTriple = "one_satellite_triple"
	SatelliteTwoSafe   = "two_satellite_safe"
	SatelliteTwoFast   = "two_satellite_fast"
)

// Remote redundancy modes
const (
	RemoteSingle = "remote_single"
	RemoteDouble = "remote_double"
	RemoteTriple = "remote_triple"
)

// Policy signatures the named modes require.
const (
	threeDatacenterSignature  = "((dcid^3 x 1) & (zoneid^3 x 1))"
	threeDataHallLogSignature = "data_hall^2 x zoneid^2 x 1"
	threeDataHallSignature    = "data_hall^3 x 1"
	multiDCLogSignature       = "dcid^2 x zoneid^2 x 1"
	multiDCStorageSignature   = "dcid^3 x zoneid^2 x 1"
)

func signature(p policy.Policy) string {
	if p == nil {
		return ""
	}
	return p.Info()
}

func (c *DatabaseConfiguration) redundancyMode() string {
	if c.storageQuorum != c.storageTeamSize || c.logWriteAntiQuorum != 0 {
		return ModeCustom
	}

	logInfo := signature(c.policies[slotLog])
	storageInfo := signature(c.policies[slotStorage])

	switch {
	case c.logReplicationFactor == 1 && c.storageQuorum == 1:
		return ModeSingle
	case c.logReplicationFactor == 2 && c.storageQuorum == 2:
		return ModeDouble
	case c.logReplicationFactor == 3 && c.storageQuorum == 3 &&
		logInfo == threeDatacenterSignature && storageInfo == threeDatacenterSignature:
		return ModeThreeDatacenter
	case c.logReplicationFactor == 3 && c.storageQuorum == 3:
		return ModeTriple
	case c.logReplicationFactor == 4 && c.storageQuorum == 3 &&
		logInfo == threeDataHallLogSignature && storageInfo == threeDataHallSignature:
		return ModeThreeDataHall
	case c.logReplicationFactor == 4 && c.storageQuorum == 6 &&
		logInfo == multiDCLogSignature && storageInfo == multiDCStorageSignature:
		return ModeMultiDC
	}
	return ModeCustom
}

func (c *DatabaseConfiguration) storageEngine() string {
	if c.logStoreType != c.storageStoreType {
		return ModeCustom
	}
	switch c.logStoreType {
	case StoreSSDBTreeV1:
		return EngineSSD1
	case StoreSSDBTreeV2:
		return EngineSSD2
	case StoreMemory:
		return EngineMemory
	}
	return ModeCustom
}

type satelliteShape struct {
	factor, usableDcs, antiQuorum int
}

var satelliteModes = map[satelliteShape]string{
	{1, 1, 0}: SatelliteOneSingle,
	{2, 1, 0}: SatelliteOneDouble,
	{3, 1, 0}: SatelliteOneTriple,
	{4, 2, 0}: SatelliteTwoSafe,
	{4, 2, 2}: SatelliteTwoFast,
}

func (c *DatabaseConfiguration) satelliteRedundancyMode() string {
	shape := satelliteShape{c.satelliteLogReplicationFactor, c.satelliteUsableDcs, c.satelliteLogWriteAntiQuorum}
	if mode, ok := satelliteModes[shape]; ok {
		return mode
	}
	if c.satelliteLogReplicationFactor == 0 {
		return ModeNone
	}
	return ModeCustom
}

func (c *DatabaseConfiguration) remoteRedundancyMode() string {
	switch c.remoteLogReplicationFactor {
	case 0:
		return ModeNone
	case 1:
		return RemoteSingle
	case 2:
		return RemoteDouble
	case 3:
		return RemoteTriple
	}
	return ModeCustom
}

func joinDcs(dcs []DcID) string {
	parts := make([]string, 0, len(dcs))
	for _, dc := range dcs {
		if dc.Present {
			parts = append(parts, printable(dc.ID))
		}
	}
	return strings.Join(parts, ",")
}

// ToMap classifies the configuration into canonical, human-meaningful entries. It is empty until
// the configuration is initialized and never fails.
func (c *DatabaseConfiguration) ToMap() map[string]string {
	result := make(map[string]string)
	if !c.initialized {
		return result
	}

	result[KeyRedundancyMode] = c.redundancyMode()
	result[KeyStorageEngine] = c.storageEngine()
	result[KeySatelliteRedundancyMode] = c.satelliteRedundancyMode()
	result[KeyRemoteRedundancyMode] = c.remoteRedundancyMode()

	if c.primaryDc.Present {
		result[KeyPrimaryDc] = printable(c.primaryDc.ID)
	}
	if c.remoteDc.Present {
		result[KeyRemoteDc] = printable(c.remoteDc.ID)
	}
	if len(c.primarySatelliteDcs) > 0 {
		result[KeyPrimarySatelliteDcs] = joinDcs(c.primarySatelliteDcs)
	}
	if len(c.remoteSatelliteDcs) > 0 {
		result[KeyRemoteSatelliteDcs] = joinDcs(c.remoteSatelliteDcs)
	}

	counts := []struct {
		key   string
		value int
	}{
		{KeyLogs, c.desiredLogs},
		{KeyRemoteLogs, c.desiredRemoteLogs},
		{KeySatelliteLogs, c.desiredSatelliteLogs},
		{KeyProxies, c.desiredProxies},
		{KeyResolvers, c.desiredResolvers},
	}
	for _, count := range counts {
		if count.value != -1 {
			result[count.key] = strconv.Itoa(count.value)
		}
	}

	return result
}

// String renders ToMap as key=value pairs sorted by key and joined by ';'.
func (c *DatabaseConfiguration) String() string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}
