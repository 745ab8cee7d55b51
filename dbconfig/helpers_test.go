package dbconfig

import (
	"strconv"
	"testing"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/policy"
	"github.com/maxpert/topology/systemkeys"
	"github.com/stretchr/testify/require"
)

func ck(suffix string) []byte {
	return systemkeys.ConfigKey(suffix)
}

func pair(suffix, value string) common.KeyValue {
	return common.KeyValue{Key: ck(suffix), Value: []byte(value)}
}

func policyPair(suffix string, p policy.Policy) common.KeyValue {
	return common.KeyValue{Key: ck(suffix), Value: policy.MustEncode(p)}
}

// replicated returns the pairs of an initialized configuration with the given factors.
func replicated(logReplicas, storageQuorum, storageReplicas int) []common.KeyValue {
	return []common.KeyValue{
		pair("initialized", ""),
		pair("log_replicas", strconv.Itoa(logReplicas)),
		pair("log_anti_quorum", "0"),
		pair("storage_quorum", strconv.Itoa(storageQuorum)),
		pair("storage_replicas", strconv.Itoa(storageReplicas)),
		pair("log_engine", "0"),
		pair("storage_engine", "0"),
	}
}

func tripleConfig(t *testing.T) *DatabaseConfiguration {
	t.Helper()
	c, err := FromSnapshot(DefaultKnobs(), replicated(3, 3, 3))
	require.NoError(t, err)
	return c
}

func setAll(t *testing.T, c *DatabaseConfiguration, kvs ...common.KeyValue) {
	t.Helper()
	for _, kv := range kvs {
		_, err := c.Set(kv.Key, kv.Value)
		require.NoError(t, err)
	}
}
