// Package dbconfig is the cluster-wide configuration model.
//
// A DatabaseConfiguration turns the raw key/value pairs of the configuration namespace into
// typed topology fields, checks them for validity and classifies them into canonical
// redundancy modes. It is populated either by a one-shot LoadSnapshot or by an ordered sequence
// of Set/Clear/ApplyMutation calls.
//
// Thread Safety: a DatabaseConfiguration is a single-owner value. Mutations must be delivered in
// commit order by that owner; reads from other goroutines need external locking. Note that
// ExcludedServers collapses the mutable overlay and is therefore not a pure read.
package dbconfig

import (
	"errors"
	"fmt"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/kvstore"
	"github.com/maxpert/topology/policy"
	"github.com/rs/zerolog/log"
)

// ErrPolicyDecode wraps failures to deserialize a placement policy value.
var ErrPolicyDecode = errors.New("dbconfig: cannot decode replication policy")

// StoreType selects the storage engine of a role.
type StoreType int

const (
	StoreSSDBTreeV1 StoreType = iota
	StoreMemory
	StoreSSDBTreeV2
	StoreTypeNone // sentinel: not configured
)

func (t StoreType) String() string {
	switch t {
	case StoreSSDBTreeV1:
		return "ssd-1"
	case StoreMemory:
		return "memory"
	case StoreSSDBTreeV2:
		return "ssd-2"
	case StoreTypeNone:
		return "none"
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// DcID is an optional datacenter identifier.
type DcID struct {
	ID      string
	Present bool
}

// SomeDc returns a present datacenter identifier.
func SomeDc(id string) DcID {
	return DcID{ID: id, Present: true}
}

func (d DcID) String() string {
	if !d.Present {
		return "<absent>"
	}
	return printable(d.ID)
}

// Knobs are the process-wide tunables the configuration falls back on.
type Knobs struct {
	DefaultAutoProxies   int
	DefaultAutoResolvers int
	DefaultAutoLogs      int
}

// DefaultKnobs returns the stock tunables.
func DefaultKnobs() Knobs {
	return Knobs{
		DefaultAutoProxies:   3,
		DefaultAutoResolvers: 1,
		DefaultAutoLogs:      3,
	}
}

// Option customizes a DatabaseConfiguration.
type Option func(*DatabaseConfiguration)

// WithPolicyDecoder replaces the policy decoder, typically with a shared *policy.Cache.
func WithPolicyDecoder(d policy.Decoder) Option {
	return func(c *DatabaseConfiguration) {
		c.decoder = d
	}
}

// policySlot indexes the four placement policies.
type policySlot int

const (
	slotStorage policySlot = iota
	slotLog
	slotRemoteLog
	slotSatelliteLog
	numPolicySlots
)

// DatabaseConfiguration is the typed view of the configuration namespace.
type DatabaseConfiguration struct {
	knobs   Knobs
	decoder policy.Decoder
	store   *kvstore.Store

	initialized bool

	desiredProxies       int
	desiredResolvers     int
	desiredLogs          int
	desiredRemoteLogs    int
	desiredSatelliteLogs int
	desiredLogRouters    int

	logWriteAntiQuorum   int
	logReplicationFactor int
	storageQuorum        int
	storageTeamSize      int

	autoProxies   int
	autoResolvers int
	autoLogs      int

	logStoreType     StoreType
	storageStoreType StoreType

	primaryDc           DcID
	remoteDc            DcID
	primarySatelliteDcs []DcID
	remoteSatelliteDcs  []DcID

	policies [numPolicySlots]policy.Policy
	// defaulted marks policies built by SetDefaultReplicationPolicy rather than parsed
	defaulted [numPolicySlots]bool

	remoteLogReplicationFactor    int
	satelliteLogReplicationFactor int
	satelliteLogWriteAntiQuorum   int
	satelliteUsableDcs            int
}

// New creates an empty, invalid configuration.
func New(knobs Knobs, opts ...Option) *DatabaseConfiguration {
	c := &DatabaseConfiguration{
		knobs:   knobs,
		decoder: policy.Uncached,
		store:   kvstore.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetInternal()
	return c
}

// FromSnapshot creates a configuration and bulk loads kvs into it.
func FromSnapshot(knobs Knobs, kvs []common.KeyValue, opts ...Option) (*DatabaseConfiguration, error) {
	c := New(knobs, opts...)
	if err := c.LoadSnapshot(kvs); err != nil {
		return nil, err
	}
	return c, nil
}

// resetInternal restores every typed field to its default. It does NOT touch the store.
func (c *DatabaseConfiguration) resetInternal() {
	c.initialized = false

	c.desiredProxies, c.desiredResolvers, c.desiredLogs = -1, -1, -1
	c.logWriteAntiQuorum, c.logReplicationFactor = -1, -1
	c.storageQuorum, c.storageTeamSize = -1, -1
	c.desiredRemoteLogs, c.desiredSatelliteLogs, c.desiredLogRouters = -1, -1, -1

	c.logStoreType, c.storageStoreType = StoreTypeNone, StoreTypeNone

	c.autoProxies = c.knobs.DefaultAutoProxies
	c.autoResolvers = c.knobs.DefaultAutoResolvers
	c.autoLogs = c.knobs.DefaultAutoLogs

	c.primaryDc, c.remoteDc = DcID{}, DcID{}
	c.primarySatelliteDcs, c.remoteSatelliteDcs = nil, nil

	c.policies = [numPolicySlots]policy.Policy{}
	c.defaulted = [numPolicySlots]bool{}

	c.remoteLogReplicationFactor = 0
	c.satelliteLogReplicationFactor = 0
	c.satelliteLogWriteAntiQuorum = 0
	c.satelliteUsableDcs = 0
}

// replay resets the typed fields and re-parses every stored key in key order. On a policy
// decode failure the fields are left reset (invalid) and the error is returned.
func (c *DatabaseConfiguration) replay() error {
	c.resetInternal()

	var err error
	c.store.All(func(key, value []byte) bool {
		if _, err = c.TryApply(key, value); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		c.resetInternal()
		return err
	}

	c.SetDefaultReplicationPolicy()
	return nil
}

// LoadSnapshot replaces the whole namespace with kvs (the result of a point-in-time read) and
// re-derives every field. The store is left in snapshot state.
func (c *DatabaseConfiguration) LoadSnapshot(kvs []common.KeyValue) error {
	c.store = kvstore.NewSnapshot(kvs)
	if err := c.replay(); err != nil {
		return fmt.Errorf("load configuration snapshot: %w", err)
	}

	log.Debug().
		Int("keys", c.store.Len()).
		Bool("valid", c.IsValid()).
		Msg("Loaded configuration snapshot")
	return nil
}
