package dbconfig

import (
	"net/netip"
	"testing"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/systemkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMutationRouting(t *testing.T) {
	c := tripleConfig(t)

	_, err := c.ApplyMutation(common.NewSet([]byte("app/key"), []byte("v")))
	require.NoError(t, err)
	_, ok := c.Get([]byte("app/key"))
	assert.False(t, ok, "keys outside the namespace are ignored")

	_, err = c.ApplyMutation(common.NewSet(ck("proxies"), []byte("6")))
	require.NoError(t, err)
	assert.Equal(t, 6, c.DesiredProxies())

	_, err = c.ApplyMutation(common.Mutation{Type: common.AddValue, Param1: ck("proxies"), Param2: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, 6, c.DesiredProxies(), "atomic ops are not interpreted")

	invalidated, err := c.ApplyMutation(common.NewClearRange([]byte("a"), []byte("b")))
	require.NoError(t, err)
	assert.False(t, invalidated)
	assert.Equal(t, 6, c.DesiredProxies())
}

func TestApplyMutationClearsIntersection(t *testing.T) {
	c := tripleConfig(t)

	invalidated, err := c.ApplyMutation(common.NewClearRange([]byte("\x00"), ck("log_replicas\x00")))
	require.NoError(t, err)
	assert.True(t, invalidated)
	assert.Equal(t, -1, c.LogReplicationFactor())
	assert.False(t, c.Initialized())
	assert.Equal(t, 3, c.StorageTeamSize())

	invalidated, err = c.ApplyMutation(common.NewClearToEnd([]byte("\xff")))
	require.NoError(t, err)
	assert.False(t, invalidated)
	assert.Zero(t, c.KeyCount())
}

func TestApplyMutationClearEndConvention(t *testing.T) {
	c := tripleConfig(t)
	before := c.KeyCount()

	// An empty end is an empty range
	invalidated, err := c.ApplyMutation(common.NewClearRange(ck("storage_quorum"), []byte{}))
	require.NoError(t, err)
	assert.False(t, invalidated)
	assert.Equal(t, before, c.KeyCount())
	assert.True(t, c.IsValid())

	// An unbounded clear reaches the end of the namespace
	invalidated, err = c.ApplyMutation(common.NewClearToEnd(ck("storage_quorum")))
	require.NoError(t, err)
	assert.True(t, invalidated)
	assert.Equal(t, before-2, c.KeyCount())
	assert.Equal(t, -1, c.StorageQuorum())
	assert.Equal(t, -1, c.StorageTeamSize())
	assert.Equal(t, 3, c.LogReplicationFactor())
}

func TestApplyMutationReportsTransition(t *testing.T) {
	c := tripleConfig(t)
	invalidated, err := c.ApplyMutation(common.NewClearRange(ck("storage_replicas"), ck("storage_replicas\x00")))
	require.NoError(t, err)
	assert.True(t, invalidated)
}

func TestApplyMutationPropagatesPolicyErrors(t *testing.T) {
	c := tripleConfig(t)
	_, err := c.ApplyMutation(common.NewSet(ck("log_replication_policy"), []byte("nope")))
	assert.ErrorIs(t, err, ErrPolicyDecode)
}

func TestExcludedServers(t *testing.T) {
	c := tripleConfig(t)
	machine := systemkeys.ExcludeMachine(netip.MustParseAddr("10.0.0.2"))
	process := systemkeys.ExcludeProcess(netip.MustParseAddrPort("10.0.0.1:4500"))

	setAll(t, c,
		common.KeyValue{Key: systemkeys.EncodeExcludedServersKey(process), Value: []byte{}},
		common.KeyValue{Key: systemkeys.EncodeExcludedServersKey(machine), Value: []byte{}},
		common.KeyValue{Key: []byte(systemkeys.ExcludedServersPrefix + "not-an-address"), Value: []byte{}},
		common.KeyValue{Key: []byte(systemkeys.ExcludedServersVersionKey), Value: []byte("v2")},
	)

	assert.True(t, c.IsExcludedServer(netip.MustParseAddrPort("10.0.0.1:4500")))
	assert.False(t, c.IsExcludedServer(netip.MustParseAddrPort("10.0.0.1:4501")))
	assert.True(t, c.IsExcludedServer(netip.MustParseAddrPort("10.0.0.2:1")))
	assert.True(t, c.IsExcludedServer(netip.MustParseAddrPort("10.0.0.2:4500")))
	assert.False(t, c.IsExcludedServer(netip.MustParseAddrPort("10.0.0.3:4500")))

	excluded := c.ExcludedServers()
	require.Len(t, excluded, 2)
	assert.Contains(t, excluded, machine)
	assert.Contains(t, excluded, process)
	assert.True(t, c.IsValid(), "exclusions do not affect validity")
}

func TestExcludedServersEmpty(t *testing.T) {
	c := New(DefaultKnobs())
	assert.Empty(t, c.ExcludedServers())
	assert.False(t, c.IsExcludedServer(netip.MustParseAddrPort("127.0.0.1:1")))
}
