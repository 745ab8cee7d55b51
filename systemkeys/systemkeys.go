// Package systemkeys defines the reserved key layout of the configuration namespace.
package systemkeys

import (
	"github.com/maxpert/topology/common"
)

// Key prefixes (sorted so every configuration entry lives in one contiguous range)
const (
	ConfigKeysPrefix      = "\xff/conf/"          // \xff/conf/{field}
	ExcludedServersPrefix = "\xff/conf/excluded/" // \xff/conf/excluded/{ip}[:{port}]

	// ExcludedServersVersionKey is bumped whenever the exclusion list changes.
	ExcludedServersVersionKey = "\xff/conf/excluded"
)

var (
	// ConfigKeys is the whole configuration namespace.
	ConfigKeys = common.KeyRange{Begin: []byte(ConfigKeysPrefix), End: []byte("\xff/conf0")}

	// ExcludedServersKeys holds one key per administratively excluded address.
	ExcludedServersKeys = common.KeyRange{Begin: []byte(ExcludedServersPrefix), End: []byte("\xff/conf/excluded0")}
)

// ConfigKey returns the full key for a configuration field.
func ConfigKey(suffix string) []byte {
	return []byte(ConfigKeysPrefix + suffix)
}

// InConfigNamespace returns true if key starts with the configuration prefix.
func InConfigNamespace(key []byte) bool {
	return ConfigKeys.Contains(key)
}

// ConfigSuffix strips the configuration prefix. The second result is false for keys outside
// the namespace.
func ConfigSuffix(key []byte) (string, bool) {
	if !InConfigNamespace(key) || len(key) < len(ConfigKeysPrefix) {
		return "", false
	}
	return string(key[len(ConfigKeysPrefix):]), true
}
