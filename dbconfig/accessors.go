package dbconfig

import "github.com/maxpert/topology/policy"

// Initialized reports whether the initialized key is present.
func (c *DatabaseConfiguration) Initialized() bool { return c.initialized }

// LogWriteAntiQuorum is the number of log replicas a commit may skip, -1 when unset.
func (c *DatabaseConfiguration) LogWriteAntiQuorum() int { return c.logWriteAntiQuorum }

// LogReplicationFactor is the number of log replicas, -1 when unset.
func (c *DatabaseConfiguration) LogReplicationFactor() int { return c.logReplicationFactor }

// StorageQuorum is the storage write quorum, -1 when unset.
func (c *DatabaseConfiguration) StorageQuorum() int { return c.storageQuorum }

// StorageTeamSize is the number of storage replicas, -1 when unset.
func (c *DatabaseConfiguration) StorageTeamSize() int { return c.storageTeamSize }

// LogStoreType is the log engine.
func (c *DatabaseConfiguration) LogStoreType() StoreType { return c.logStoreType }

// StorageStoreType is the storage engine.
func (c *DatabaseConfiguration) StorageStoreType() StoreType { return c.storageStoreType }

// PrimaryDc is the primary region datacenter.
func (c *DatabaseConfiguration) PrimaryDc() DcID { return c.primaryDc }

// RemoteDc is the remote region datacenter.
func (c *DatabaseConfiguration) RemoteDc() DcID { return c.remoteDc }

// RemoteLogReplicationFactor is the remote log replica count, 0 without a remote region.
func (c *DatabaseConfiguration) RemoteLogReplicationFactor() int { return c.remoteLogReplicationFactor }

// SatelliteLogReplicationFactor is the satellite log replica count, 0 without satellites.
func (c *DatabaseConfiguration) SatelliteLogReplicationFactor() int { return c.satelliteLogReplicationFactor }

// SatelliteLogWriteAntiQuorum is the satellite log anti-quorum.
func (c *DatabaseConfiguration) SatelliteLogWriteAntiQuorum() int { return c.satelliteLogWriteAntiQuorum }

// SatelliteUsableDcs is the number of satellite datacenters usable for logs.
func (c *DatabaseConfiguration) SatelliteUsableDcs() int { return c.satelliteUsableDcs }

// PrimarySatelliteDcs returns a copy of the primary region's satellite datacenters.
func (c *DatabaseConfiguration) PrimarySatelliteDcs() []DcID {
	return append([]DcID(nil), c.primarySatelliteDcs...)
}

// RemoteSatelliteDcs returns a copy of the remote region's satellite datacenters.
func (c *DatabaseConfiguration) RemoteSatelliteDcs() []DcID {
	return append([]DcID(nil), c.remoteSatelliteDcs...)
}

// StoragePolicy is the storage replication policy, nil when absent.
func (c *DatabaseConfiguration) StoragePolicy() policy.Policy { return c.policies[slotStorage] }

// LogPolicy is the log replication policy, nil when absent.
func (c *DatabaseConfiguration) LogPolicy() policy.Policy { return c.policies[slotLog] }

// RemoteLogPolicy is the remote log replication policy, nil when absent.
func (c *DatabaseConfiguration) RemoteLogPolicy() policy.Policy { return c.policies[slotRemoteLog] }

// SatelliteLogPolicy is the satellite log replication policy, nil when absent.
func (c *DatabaseConfiguration) SatelliteLogPolicy() policy.Policy { return c.policies[slotSatelliteLog] }
