// Package coordinator owns the live cluster configuration.
//
// A Coordinator is the single writer of a dbconfig.DatabaseConfiguration: it assigns commit
// versions from the HLC, makes every mutation durable in the pebble log before it becomes
// visible, and publishes validity changes to subscribers and metrics. Readers share its lock.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"sync"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/db"
	"github.com/maxpert/topology/dbconfig"
	"github.com/maxpert/topology/hlc"
	"github.com/maxpert/topology/notify"
	"github.com/maxpert/topology/policy"
	"github.com/maxpert/topology/systemkeys"
	"github.com/maxpert/topology/telemetry"
	"github.com/rs/zerolog/log"
)

// DefaultPolicyCacheSize is used when Options.PolicyCacheSize is not positive.
const DefaultPolicyCacheSize = 128

// Options tunes a Coordinator.
type Options struct {
	PolicyCacheSize int
}

// Result describes a committed batch.
type Result struct {
	Version     uint64 // version of the last mutation in the batch, 0 when nothing was committed
	Valid       bool
	Invalidated bool // a clear in the batch turned a valid configuration invalid
}

// Store is the durable namespace and mutation log a Coordinator commits to. *db.PebbleStore
// implements it.
type Store interface {
	ReadSnapshot(r common.KeyRange) ([]common.KeyValue, uint64, error)
	Apply(version uint64, m common.Mutation) error
	AppliedVersion() (uint64, error)
	AppendLog(version uint64, m common.Mutation) error
	ReplayLog(after uint64, fn func(version uint64, m common.Mutation) error) error
	LastLogVersion() (uint64, error)
	TruncateLog(upTo uint64) error
}

var _ Store = (*db.PebbleStore)(nil)

// Coordinator serializes all configuration mutations.
type Coordinator struct {
	mu sync.RWMutex

	store Store
	clock *hlc.Clock
	hub   *notify.Hub
	cache *policy.Cache

	config    *dbconfig.DatabaseConfiguration
	version   uint64
	recovered bool
}

// New creates a coordinator over an opened store. Call Recover before Apply, and again after
// Apply returns a PersistError.
func New(store Store, clock *hlc.Clock, hub *notify.Hub, knobs dbconfig.Knobs, opts Options) (*Coordinator, error) {
	size := opts.PolicyCacheSize
	if size <= 0 {
		size = DefaultPolicyCacheSize
	}

	cache, err := policy.NewCache(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy cache: %w", err)
	}

	return &Coordinator{
		store:  store,
		clock:  clock,
		hub:    hub,
		cache:  cache,
		config: dbconfig.New(knobs, dbconfig.WithPolicyDecoder(cache)),
	}, nil
}

// Recover bulk loads the persisted namespace and replays any logged mutation that was not yet
// applied to it. The resulting configuration is the same as if every logged mutation had been
// applied in order.
func (c *Coordinator) Recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kvs, applied, err := c.store.ReadSnapshot(systemkeys.ConfigKeys)
	if err != nil {
		return fmt.Errorf("failed to read configuration snapshot: %w", err)
	}
	if err := c.config.LoadSnapshot(kvs); err != nil {
		return err
	}

	replayed := 0
	version := applied
	err = c.store.ReplayLog(applied, func(v uint64, m common.Mutation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.store.Apply(v, m); err != nil {
			return err
		}
		if _, err := c.config.ApplyMutation(m); err != nil {
			return fmt.Errorf("replay version %d: %w", v, err)
		}
		version = v
		replayed++
		telemetry.RecoveryReplayed.Inc()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay configuration log: %w", err)
	}

	last, err := c.store.LastLogVersion()
	if err != nil {
		return err
	}
	c.version = max(version, last)
	c.clock.Update(hlc.FromVersion(c.version))
	c.config.ToImmutableSnapshot()
	c.recovered = true

	valid, mode := c.config.IsValid(), c.mode()
	recordState(valid, mode)
	telemetry.ConfigKeys.Set(float64(c.config.KeyCount()))

	log.Info().
		Uint64("version", c.version).
		Int("keys", c.config.KeyCount()).
		Int("replayed", replayed).
		Bool("valid", valid).
		Str("mode", mode).
		Msg("Recovered configuration")

	c.hub.Signal(notify.Signal{Version: c.version, Valid: valid, Mode: mode})
	return nil
}

// Apply commits muts in order as one batch. Every mutation is validated first; if any is
// rejected nothing is applied. Each accepted mutation gets its own version, is appended to the
// log, applied to the persisted namespace and then to the in-memory configuration.
func (c *Coordinator) Apply(ctx context.Context, muts ...common.Mutation) (Result, error) {
	metrics := NewApplyMetrics()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recovered {
		return Result{}, metrics.RecordFailure(ErrNotRecovered)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, metrics.RecordFailure(err)
	}

	batch := make([]common.Mutation, 0, len(muts))
	for i, m := range muts {
		clipped, err := c.validate(m)
		if err != nil {
			metrics.RecordMutation(m, "failed")
			if errors.Is(err, dbconfig.ErrPolicyDecode) {
				telemetry.PolicyDecodeFailures.Inc()
			}
			return Result{}, metrics.RecordFailure(&MutationRejectedError{Index: i, Mutation: m, Err: err})
		}
		batch = append(batch, clipped)
	}

	wasValid := c.config.IsValid()
	result := Result{}

	for i, m := range batch {
		version := c.nextVersion()
		if err := c.store.AppendLog(version, m); err != nil {
			metrics.RecordMutation(m, "failed")
			c.publish(wasValid, result)
			return result, metrics.RecordFailure(&PersistError{Applied: i, Version: version, Err: err})
		}

		// The log entry is the commit point. A failed namespace write is repaired by the
		// next Recover, so the in-memory view still moves forward but further commits are
		// refused until then: a later applied version would hide this entry from replay.
		persistErr := c.store.Apply(version, m)

		invalidated, err := c.config.ApplyMutation(m)
		if err != nil {
			// validate guarantees policies decode; anything else is a bug
			log.Error().Err(err).Uint64("version", version).Stringer("mutation", m).Msg("Configuration rejected validated mutation")
		}

		result.Version = version
		result.Invalidated = result.Invalidated || invalidated
		metrics.RecordMutation(m, "ok")

		if persistErr != nil {
			c.recovered = false
			log.Error().Err(persistErr).Uint64("version", version).Msg("Namespace write failed after log append, recovery required")
			c.publish(wasValid, result)
			return result, metrics.RecordFailure(&PersistError{Applied: i + 1, Version: version, Err: persistErr})
		}
	}

	result = c.publish(wasValid, result)
	metrics.RecordSuccess()
	return result, nil
}

// validate checks m against the namespace and returns the mutation that will be committed.
// Clears are clipped to the namespace.
func (c *Coordinator) validate(m common.Mutation) (common.Mutation, error) {
	switch m.Type {
	case common.ClearRange:
		r := m.Range()
		if !r.Intersects(systemkeys.ConfigKeys) {
			return m, ErrOutsideNamespace
		}
		clipped := r.Intersect(systemkeys.ConfigKeys)
		return common.NewClearRange(clipped.Begin, clipped.End), nil
	default:
		if !systemkeys.InConfigNamespace(m.Param1) {
			return m, ErrOutsideNamespace
		}
		if m.Type == common.SetValue {
			return m, c.config.CheckValue(m.Param1, m.Param2)
		}
		return m, nil
	}
}

// nextVersion returns a version strictly greater than every version handed out or recovered,
// even if the wall clock moved backwards across a restart.
func (c *Coordinator) nextVersion() uint64 {
	v := c.clock.Now().ToVersion()
	if v <= c.version {
		v = c.version + 1
	}
	c.version = v
	return v
}

// publish updates metrics, logs validity transitions and signals subscribers. Callers hold mu.
func (c *Coordinator) publish(wasValid bool, result Result) Result {
	valid, mode := c.config.IsValid(), c.mode()
	result.Valid = valid

	recordState(valid, mode)
	telemetry.ConfigKeys.Set(float64(c.config.KeyCount()))

	transition := valid != wasValid
	if transition {
		recordTransition(valid)
		if valid {
			log.Info().Uint64("version", result.Version).Str("mode", mode).Msg("Configuration became valid")
		} else {
			log.Warn().Uint64("version", result.Version).Str("mode", mode).Msg("Configuration became invalid")
		}
	}

	c.hub.Signal(notify.Signal{Version: result.Version, Valid: valid, Mode: mode, Transition: transition})
	return result
}

// mode is the canonical redundancy mode, empty until initialized. Callers hold mu.
func (c *Coordinator) mode() string {
	return c.config.ToMap()[dbconfig.KeyRedundancyMode]
}

// Set commits a single configuration field.
func (c *Coordinator) Set(ctx context.Context, suffix string, value []byte) (Result, error) {
	return c.Apply(ctx, common.NewSet(systemkeys.ConfigKey(suffix), value))
}

// Clear commits the removal of every field with a suffix in [begin, end). An empty end clears
// through the end of the namespace.
func (c *Coordinator) Clear(ctx context.Context, begin, end string) (Result, error) {
	endKey := systemkeys.ConfigKeys.End
	if end != "" {
		endKey = systemkeys.ConfigKey(end)
	}
	return c.Apply(ctx, common.NewClearRange(systemkeys.ConfigKey(begin), endKey))
}

// Exclude commits an exclusion entry and bumps the exclusion version key.
func (c *Coordinator) Exclude(ctx context.Context, a systemkeys.AddressExclusion) (Result, error) {
	if !a.IsValid() {
		return Result{}, fmt.Errorf("invalid exclusion %v", a)
	}
	return c.Apply(ctx,
		common.NewSet(systemkeys.EncodeExcludedServersKey(a), []byte{}),
		c.bumpExclusionVersion(),
	)
}

// bumpExclusionVersion writes a fresh token so watchers of the exclusion list see a change.
func (c *Coordinator) bumpExclusionVersion() common.Mutation {
	token := strconv.FormatUint(c.clock.Now().ToVersion(), 16)
	return common.NewSet([]byte(systemkeys.ExcludedServersVersionKey), []byte(token))
}

// Include removes an exclusion entry and bumps the exclusion version key.
func (c *Coordinator) Include(ctx context.Context, a systemkeys.AddressExclusion) (Result, error) {
	r := common.SingleKeyRange(systemkeys.EncodeExcludedServersKey(a))
	return c.Apply(ctx,
		common.NewClearRange(r.Begin, r.End),
		c.bumpExclusionVersion(),
	)
}

// IsValid reports whether the live configuration is valid.
func (c *Coordinator) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.IsValid()
}

// Canonical returns the canonical classification map.
func (c *Coordinator) Canonical() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.ToMap()
}

// Describe returns the canonical string form.
func (c *Coordinator) Describe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.String()
}

// Version returns the last committed version.
func (c *Coordinator) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Get returns the raw value of a configuration field.
func (c *Coordinator) Get(suffix string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.config.Get(systemkeys.ConfigKey(suffix))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// IsExcludedServer reports whether addr or its machine is excluded.
func (c *Coordinator) IsExcludedServer(addr netip.AddrPort) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.IsExcludedServer(addr)
}

// ExcludedServers lists every exclusion. It takes the write lock because listing collapses
// the configuration's overlay.
func (c *Coordinator) ExcludedServers() []systemkeys.AddressExclusion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.ExcludedServers()
}

// Checkpoint collapses the in-memory overlay and truncates the log up to the version the
// persisted namespace already reflects.
func (c *Coordinator) Checkpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied, err := c.store.AppliedVersion()
	if err != nil {
		return err
	}
	if err := c.store.TruncateLog(applied); err != nil {
		return err
	}
	c.config.ToImmutableSnapshot()

	log.Debug().Uint64("version", applied).Msg("Checkpointed configuration log")
	return nil
}

// ConfigStats implements telemetry.StatsProvider.
func (c *Coordinator) ConfigStats() (keys, excluded, cachedPolicies int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.KeyCount(), len(c.config.ExcludedServers()), c.cache.Len()
}
