package coordinator

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/db"
	"github.com/maxpert/topology/dbconfig"
	"github.com/maxpert/topology/hlc"
	"github.com/maxpert/topology/notify"
	"github.com/maxpert/topology/policy"
	"github.com/maxpert/topology/systemkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	fs    vfs.FS
	store *db.PebbleStore
	hub   *notify.Hub
	coord *Coordinator
}

func openHarness(t *testing.T, fs vfs.FS) *harness {
	t.Helper()

	store, err := db.Open("config.pebble", db.Options{CacheSizeMB: 1, MemTableSizeMB: 1, FS: fs})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := notify.NewHub()
	coord, err := New(store, hlc.NewClock(1), hub, dbconfig.DefaultKnobs(), Options{PolicyCacheSize: 16})
	require.NoError(t, err)

	return &harness{fs: fs, store: store, hub: hub, coord: coord}
}

func recovered(t *testing.T) *harness {
	t.Helper()
	h := openHarness(t, vfs.NewMem())
	require.NoError(t, h.coord.Recover(context.Background()))
	return h
}

func set(suffix, value string) common.Mutation {
	return common.NewSet(systemkeys.ConfigKey(suffix), []byte(value))
}

func tripleBatch() []common.Mutation {
	return []common.Mutation{
		set("initialized", ""),
		set("log_replicas", "3"),
		set("log_anti_quorum", "0"),
		set("storage_quorum", "3"),
		set("storage_replicas", "3"),
		set("log_engine", "0"),
		set("storage_engine", "0"),
	}
}

func waitSignal(t *testing.T, ch <-chan notify.Signal) notify.Signal {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
	return notify.Signal{}
}

func TestApplyBeforeRecover(t *testing.T) {
	h := openHarness(t, vfs.NewMem())
	_, err := h.coord.Apply(context.Background(), set("proxies", "3"))
	assert.ErrorIs(t, err, ErrNotRecovered)
}

func TestRecoverEmptyStore(t *testing.T) {
	h := recovered(t)
	assert.False(t, h.coord.IsValid())
	assert.Empty(t, h.coord.Canonical())
	assert.Equal(t, "", h.coord.Describe())
	assert.Zero(t, h.coord.Version())
}

func TestApplyBecomesValidAndSignals(t *testing.T) {
	h := recovered(t)
	transitions, cancel := h.hub.Subscribe(notify.Filter{TransitionsOnly: true})
	defer cancel()

	res, err := h.coord.Apply(context.Background(), tripleBatch()...)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.Invalidated)
	assert.Equal(t, h.coord.Version(), res.Version)

	s := waitSignal(t, transitions)
	assert.True(t, s.Valid)
	assert.True(t, s.Transition)
	assert.Equal(t, dbconfig.ModeTriple, s.Mode)
	assert.Equal(t, dbconfig.ModeTriple, h.coord.Canonical()[dbconfig.KeyRedundancyMode])

	v, ok := h.coord.Get("storage_replicas")
	require.True(t, ok)
	assert.Equal(t, "3", string(v))

	persisted, found, err := h.store.Get(systemkeys.ConfigKey("storage_replicas"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "3", string(persisted))
}

func TestClearInvalidates(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	transitions, cancel := h.hub.Subscribe(notify.Filter{TransitionsOnly: true})
	defer cancel()

	res, err := h.coord.Clear(ctx, "storage_replicas", "storage_replicas\x00")
	require.NoError(t, err)
	assert.True(t, res.Invalidated)
	assert.False(t, res.Valid)

	s := waitSignal(t, transitions)
	assert.False(t, s.Valid)
	assert.Equal(t, res.Version, s.Version)

	_, ok := h.coord.Get("storage_replicas")
	assert.False(t, ok)
}

func TestClearThroughEndOfNamespace(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	_, err = h.coord.Clear(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, h.coord.Canonical())

	kvs, _, err := h.store.ReadSnapshot(systemkeys.ConfigKeys)
	require.NoError(t, err)
	assert.Empty(t, kvs)
}

func TestRejectedBatchAppliesNothing(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)
	before := h.coord.Version()

	_, err = h.coord.Apply(ctx,
		set("proxies", "9"),
		set("storage_replication_policy", "not a policy"),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbconfig.ErrPolicyDecode)

	var rejected *MutationRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, rejected.Index)

	_, ok := h.coord.Get("proxies")
	assert.False(t, ok)
	assert.Equal(t, before, h.coord.Version())

	last, err := h.store.LastLogVersion()
	require.NoError(t, err)
	assert.Equal(t, before, last)
}

func TestOutsideNamespaceRejected(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()

	_, err := h.coord.Apply(ctx, common.NewSet([]byte("app/key"), []byte("v")))
	assert.ErrorIs(t, err, ErrOutsideNamespace)

	_, err = h.coord.Apply(ctx, common.NewClearRange([]byte("a"), []byte("b")))
	assert.ErrorIs(t, err, ErrOutsideNamespace)
}

func TestClearIsClippedToNamespace(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	_, err = h.coord.Apply(ctx, common.NewClearToEnd([]byte("\x00")))
	require.NoError(t, err)

	var logged []common.Mutation
	require.NoError(t, h.store.ReplayLog(0, func(_ uint64, m common.Mutation) error {
		logged = append(logged, m)
		return nil
	}))
	last := logged[len(logged)-1]
	assert.Equal(t, systemkeys.ConfigKeys.Begin, last.Param1)
	assert.Equal(t, systemkeys.ConfigKeys.End, last.Param2)
}

func TestCanceledContext(t *testing.T) {
	h := recovered(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.coord.Apply(ctx, set("proxies", "3"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVersionsStrictlyIncrease(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()

	prev := uint64(0)
	for i := 0; i < 50; i++ {
		res, err := h.coord.Set(ctx, "proxies", []byte(strconv.Itoa(i+1)))
		require.NoError(t, err)
		require.Greater(t, res.Version, prev)
		prev = res.Version
	}
}

func TestRecoveryEquivalence(t *testing.T) {
	fs := vfs.NewMem()
	h := openHarness(t, fs)
	ctx := context.Background()
	require.NoError(t, h.coord.Recover(ctx))

	three := policy.NewAnd(
		policy.NewAcross(3, policy.AttrDcID, policy.One{}),
		policy.NewAcross(3, policy.AttrZoneID, policy.One{}),
	)
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)
	_, err = h.coord.Apply(ctx,
		common.NewSet(systemkeys.ConfigKey("log_replication_policy"), policy.MustEncode(three)),
		common.NewSet(systemkeys.ConfigKey("storage_replication_policy"), policy.MustEncode(three)),
		set("proxies", "5"),
		set("primary_dc", "east"),
		set("remote_dc", "west"),
	)
	require.NoError(t, err)
	_, err = h.coord.Clear(ctx, "proxies", "proxies\x00")
	require.NoError(t, err)

	wantDescription := h.coord.Describe()
	wantValid := h.coord.IsValid()
	wantVersion := h.coord.Version()
	require.Contains(t, wantDescription, "redundancy_mode=three_datacenter")
	require.NoError(t, h.store.Close())

	again := openHarness(t, fs)
	require.NoError(t, again.coord.Recover(ctx))
	assert.Equal(t, wantDescription, again.coord.Describe())
	assert.Equal(t, wantValid, again.coord.IsValid())
	assert.Equal(t, wantVersion, again.coord.Version())

	res, err := again.coord.Set(ctx, "resolvers", []byte("2"))
	require.NoError(t, err)
	assert.Greater(t, res.Version, wantVersion)
}

func TestRecoverReplaysUnappliedLog(t *testing.T) {
	fs := vfs.NewMem()
	h := openHarness(t, fs)
	ctx := context.Background()
	require.NoError(t, h.coord.Recover(ctx))
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	// Simulate a crash between the log append and the namespace write
	pending := h.coord.Version() + 10
	require.NoError(t, h.store.AppendLog(pending, common.NewClearRange(
		systemkeys.ConfigKey("storage_replicas"), systemkeys.ConfigKey("storage_replicas\x00"))))
	require.NoError(t, h.store.Close())

	again := openHarness(t, fs)
	require.NoError(t, again.coord.Recover(ctx))
	assert.False(t, again.coord.IsValid())
	assert.Equal(t, pending, again.coord.Version())

	applied, err := again.store.AppliedVersion()
	require.NoError(t, err)
	assert.Equal(t, pending, applied)
}

func TestCheckpointTruncatesLog(t *testing.T) {
	fs := vfs.NewMem()
	h := openHarness(t, fs)
	ctx := context.Background()
	require.NoError(t, h.coord.Recover(ctx))
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)
	want := h.coord.Describe()

	require.NoError(t, h.coord.Checkpoint())
	last, err := h.store.LastLogVersion()
	require.NoError(t, err)
	assert.Zero(t, last)
	require.NoError(t, h.store.Close())

	again := openHarness(t, fs)
	require.NoError(t, again.coord.Recover(ctx))
	assert.Equal(t, want, again.coord.Describe())
	assert.Equal(t, h.coord.Version(), again.coord.Version())
}

func TestExclusions(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	machine := systemkeys.ExcludeMachine(netip.MustParseAddr("10.0.0.9"))
	process := systemkeys.ExcludeProcess(netip.MustParseAddrPort("10.0.0.1:4500"))

	_, err = h.coord.Exclude(ctx, machine)
	require.NoError(t, err)
	_, err = h.coord.Exclude(ctx, process)
	require.NoError(t, err)

	assert.True(t, h.coord.IsExcludedServer(netip.MustParseAddrPort("10.0.0.9:1234")))
	assert.True(t, h.coord.IsExcludedServer(netip.MustParseAddrPort("10.0.0.1:4500")))
	assert.False(t, h.coord.IsExcludedServer(netip.MustParseAddrPort("10.0.0.1:4501")))
	assert.ElementsMatch(t, []systemkeys.AddressExclusion{machine, process}, h.coord.ExcludedServers())
	assert.True(t, h.coord.IsValid())

	_, ok := h.coord.Get("excluded")
	assert.True(t, ok, "exclusion version key is written")

	_, err = h.coord.Include(ctx, machine)
	require.NoError(t, err)
	assert.False(t, h.coord.IsExcludedServer(netip.MustParseAddrPort("10.0.0.9:1234")))
	assert.Equal(t, []systemkeys.AddressExclusion{process}, h.coord.ExcludedServers())

	_, err = h.coord.Exclude(ctx, systemkeys.AddressExclusion{})
	assert.Error(t, err)
}

func TestConfigStats(t *testing.T) {
	h := recovered(t)
	ctx := context.Background()
	_, err := h.coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)
	_, err = h.coord.Apply(ctx, common.NewSet(systemkeys.ConfigKey("log_replication_policy"), policy.MustEncode(policy.NewZoneAcross(3))))
	require.NoError(t, err)
	_, err = h.coord.Exclude(ctx, systemkeys.ExcludeMachine(netip.MustParseAddr("10.1.1.1")))
	require.NoError(t, err)

	keys, excluded, cached := h.coord.ConfigStats()
	assert.Equal(t, 10, keys)
	assert.Equal(t, 1, excluded)
	assert.Equal(t, 1, cached)
}

// flakyStore fails namespace writes on demand while the log keeps working.
type flakyStore struct {
	*db.PebbleStore
	failApply atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Apply(version uint64, m common.Mutation) error {
	if s.failApply.Load() {
		return errDiskFull
	}
	return s.PebbleStore.Apply(version, m)
}

func TestPersistErrorRequiresRecover(t *testing.T) {
	ctx := context.Background()

	pebbleStore, err := db.Open("config.pebble", db.Options{CacheSizeMB: 1, MemTableSizeMB: 1, FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { pebbleStore.Close() })

	store := &flakyStore{PebbleStore: pebbleStore}
	coord, err := New(store, hlc.NewClock(1), notify.NewHub(), dbconfig.DefaultKnobs(), Options{})
	require.NoError(t, err)
	require.NoError(t, coord.Recover(ctx))
	_, err = coord.Apply(ctx, tripleBatch()...)
	require.NoError(t, err)

	store.failApply.Store(true)
	res, err := coord.Apply(ctx, set("proxies", "5"))
	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, 1, persistErr.Applied)
	assert.ErrorIs(t, err, errDiskFull)
	failedVersion := res.Version

	// The logged mutation is visible in memory but missing from the namespace
	v, ok := coord.Get("proxies")
	require.True(t, ok)
	assert.Equal(t, "5", string(v))
	_, ok, err = pebbleStore.Get(systemkeys.ConfigKey("proxies"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Later commits would advance the applied version past the unwritten entry
	store.failApply.Store(false)
	_, err = coord.Apply(ctx, set("logs", "4"))
	assert.ErrorIs(t, err, ErrNotRecovered)

	require.NoError(t, coord.Recover(ctx))
	v, ok, err = pebbleStore.Get(systemkeys.ConfigKey("proxies"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", string(v))

	applied, err := pebbleStore.AppliedVersion()
	require.NoError(t, err)
	assert.Equal(t, failedVersion, applied)

	res, err = coord.Apply(ctx, set("logs", "4"))
	require.NoError(t, err)
	assert.Greater(t, res.Version, failedVersion)
	assert.Equal(t, "5", coord.Canonical()["proxies"])
	assert.Equal(t, "4", coord.Canonical()["logs"])
}
