package dbconfig

import (
	"github.com/maxpert/topology/policy"
	"github.com/rs/zerolog/log"
)

// replicationFactor returns the factor a default policy for slot is built from, and whether a
// default should exist at all.
func (c *DatabaseConfiguration) replicationFactor(slot policySlot) (int, bool) {
	switch slot {
	case slotStorage:
		return c.storageTeamSize, true
	case slotLog:
		return c.logReplicationFactor, true
	case slotRemoteLog:
		return c.remoteLogReplicationFactor, c.remoteLogReplicationFactor > 0
	case slotSatelliteLog:
		return c.satelliteLogReplicationFactor, c.satelliteLogReplicationFactor > 0
	}
	return 0, false
}

// SetDefaultReplicationPolicy fills every unset policy with "factor copies, one per zone".
// Remote and satellite defaults only exist while their factor is positive. Policies that were
// parsed from the namespace are never touched; defaults built earlier are rebuilt when the
// factor they were derived from has changed. Idempotent.
func (c *DatabaseConfiguration) SetDefaultReplicationPolicy() {
	for slot := policySlot(0); slot < numPolicySlots; slot++ {
		if c.policies[slot] != nil && !c.defaulted[slot] {
			continue
		}

		factor, wanted := c.replicationFactor(slot)
		if !wanted {
			c.policies[slot] = nil
			c.defaulted[slot] = false
			continue
		}

		if c.policies[slot] != nil && c.policies[slot].MaxResults() == factor {
			continue
		}

		c.policies[slot] = policy.NewZoneAcross(factor)
		c.defaulted[slot] = true
		log.Debug().Int("slot", int(slot)).Int("replicas", factor).Msg("Applied default zone replication policy")
	}
}
