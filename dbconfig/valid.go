package dbconfig

// DesiredProxies is the explicit proxy count, or the automatic one when unset.
func (c *DatabaseConfiguration) DesiredProxies() int {
	if c.desiredProxies >= 1 {
		return c.desiredProxies
	}
	return c.autoProxies
}

// DesiredResolvers is the explicit resolver count, or the automatic one when unset.
func (c *DatabaseConfiguration) DesiredResolvers() int {
	if c.desiredResolvers >= 1 {
		return c.desiredResolvers
	}
	return c.autoResolvers
}

// DesiredLogs is the explicit log count, or the automatic one when unset.
func (c *DatabaseConfiguration) DesiredLogs() int {
	if c.desiredLogs >= 1 {
		return c.desiredLogs
	}
	return c.autoLogs
}

// DesiredRemoteLogs is 1 when unset.
func (c *DatabaseConfiguration) DesiredRemoteLogs() int {
	return orOne(c.desiredRemoteLogs)
}

// DesiredSatelliteLogs is 1 when unset.
func (c *DatabaseConfiguration) DesiredSatelliteLogs() int {
	return orOne(c.desiredSatelliteLogs)
}

// DesiredLogRouters is 1 when unset.
func (c *DatabaseConfiguration) DesiredLogRouters() int {
	return orOne(c.desiredLogRouters)
}

func orOne(n int) int {
	if n == -1 {
		return 1
	}
	return n
}

// IsValid reports whether the configuration is complete and consistent enough for the cluster
// to recover with it. Pure and total.
func (c *DatabaseConfiguration) IsValid() bool {
	storagePolicy := c.policies[slotStorage]
	logPolicy := c.policies[slotLog]
	remoteLogPolicy := c.policies[slotRemoteLog]
	satelliteLogPolicy := c.policies[slotSatelliteLog]

	return c.initialized &&
		c.logWriteAntiQuorum >= 0 &&
		c.logReplicationFactor >= 1 &&
		c.storageQuorum >= 1 &&
		c.storageTeamSize >= 1 &&
		c.DesiredProxies() >= 1 &&
		c.DesiredLogs() >= 1 &&
		c.DesiredResolvers() >= 1 &&
		c.storageQuorum <= c.storageTeamSize &&
		c.logStoreType != StoreTypeNone &&
		c.storageStoreType != StoreTypeNone &&
		c.autoProxies >= 1 &&
		c.autoResolvers >= 1 &&
		c.autoLogs >= 1 &&
		storagePolicy != nil &&
		logPolicy != nil &&
		c.DesiredRemoteLogs() >= 1 &&
		c.DesiredLogRouters() >= 1 &&
		c.remoteLogReplicationFactor >= 0 &&
		(c.remoteLogReplicationFactor == 0 ||
			(remoteLogPolicy != nil && c.primaryDc.Present && c.remoteDc.Present && c.storageQuorum == c.storageTeamSize)) &&
		c.primaryDc.Present == c.remoteDc.Present &&
		c.DesiredSatelliteLogs() >= 1 &&
		c.satelliteLogReplicationFactor >= 0 &&
		c.satelliteLogWriteAntiQuorum >= 0 &&
		c.satelliteUsableDcs >= 0 &&
		(c.satelliteLogReplicationFactor == 0 ||
			(satelliteLogPolicy != nil && len(c.primarySatelliteDcs) > 0 && len(c.remoteSatelliteDcs) > 0 && c.remoteLogReplicationFactor > 0)) &&
		len(c.primarySatelliteDcs) == len(c.remoteSatelliteDcs)
}
