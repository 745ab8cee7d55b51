package hlc

import (
	"sync"
	"time"
)

// Clock implements a Hybrid Logical Clock that stamps configuration commits
type Clock struct {
	nodeID   uint64
	wallTime int64
	logical  int32
	lastMS   int64 // logical resets when this changes
	mu       sync.Mutex
}

// Timestamp represents a point in time across the cluster
type Timestamp struct {
	WallTime int64
	Logical  int32
	NodeID   uint64
}

// NewClock creates a new HLC instance
func NewClock(nodeID uint64) *Clock {
	now := time.Now().UnixNano()
	return &Clock{
		nodeID:   nodeID,
		wallTime: now,
		lastMS:   now / 1_000_000,
	}
}

// MaxLogical is the maximum value for logical counter before overflow
const MaxLogical = LogicalMask

// Now generates a new timestamp for a local commit
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := time.Now().UnixNano()
	currentMS := physicalNow / 1_000_000

	if physicalNow > c.wallTime {
		c.wallTime = physicalNow
	}

	// ToVersion keeps 16 bits of logical per millisecond
	if currentMS > c.lastMS {
		c.lastMS = currentMS
		c.logical = 0
	}

	c.waitForLogical(0)
	c.logical++

	return c.timestamp()
}

// Update folds a remote (or recovered) timestamp into the clock so that every later Now is
// strictly after it. Returns the updated current time.
func (c *Clock) Update(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := time.Now().UnixNano()

	maxWall := max(c.wallTime, remote.WallTime, physicalNow)
	maxWallMS := maxWall / 1_000_000

	switch {
	case maxWall == c.wallTime && maxWall == remote.WallTime:
		c.logical = max(c.logical, remote.Logical) + 1
	case maxWall == remote.WallTime:
		c.logical = remote.Logical + 1
	case maxWall == physicalNow:
		if maxWallMS > c.lastMS {
			c.logical = 0
		} else {
			c.logical++
		}
	default:
		c.logical++
	}

	c.wallTime = maxWall
	c.lastMS = maxWallMS

	c.waitForLogical(1)
	return c.timestamp()
}

// waitForLogical spins into the next millisecond once the logical counter is exhausted.
// Callers hold mu.
func (c *Clock) waitForLogical(restart int32) {
	for c.logical >= MaxLogical {
		time.Sleep(100 * time.Microsecond)
		now := time.Now().UnixNano()
		nowMS := now / 1_000_000
		if nowMS > c.lastMS {
			c.wallTime = now
			c.lastMS = nowMS
			c.logical = restart
			return
		}
	}
}

func (c *Clock) timestamp() Timestamp {
	return Timestamp{
		WallTime: c.wallTime,
		Logical:  c.logical,
		NodeID:   c.nodeID,
	}
}

// Compare compares two timestamps
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func Compare(a, b Timestamp) int {
	switch {
	case a.WallTime < b.WallTime:
		return -1
	case a.WallTime > b.WallTime:
		return 1
	case a.Logical < b.Logical:
		return -1
	case a.Logical > b.Logical:
		return 1
	case a.NodeID < b.NodeID:
		return -1
	case a.NodeID > b.NodeID:
		return 1
	}
	return 0
}

// PhysicalTime returns the physical time component as time.Time
func (t Timestamp) PhysicalTime() time.Time {
	return time.Unix(0, t.WallTime)
}

// String returns a human-readable representation
func (t Timestamp) String() string {
	return t.PhysicalTime().Format(time.RFC3339Nano)
}

// LogicalBits is the number of bits reserved for the logical counter in versions.
const LogicalBits = 16

// LogicalMask masks the logical counter to 16 bits for ToVersion
const LogicalMask = (1 << LogicalBits) - 1

// NodeIDBits is the number of bits reserved for node ID in versions.
const NodeIDBits = 6

// NodeIDMask masks the node ID to 6 bits for ToVersion
const NodeIDMask = (1 << NodeIDBits) - 1

// TotalShiftBits is the total bits to shift wall time (NodeIDBits + LogicalBits)
const TotalShiftBits = NodeIDBits + LogicalBits

// ToVersion packs a timestamp into a commit version.
// Format: (physical_ms << 22) | (node_id << 16) | logical
//
// Versions from one clock are strictly increasing, which is the order the mutation log and the
// configuration model rely on.
func (t Timestamp) ToVersion() uint64 {
	physicalMS := uint64(t.WallTime / 1_000_000)
	nodeID := t.NodeID & NodeIDMask
	logical := uint64(t.Logical) & LogicalMask
	return (physicalMS << TotalShiftBits) | (nodeID << LogicalBits) | logical
}

// FromVersion unpacks a commit version. Sub-millisecond wall time is lost.
func FromVersion(version uint64) Timestamp {
	return Timestamp{
		WallTime: int64(version>>TotalShiftBits) * 1_000_000,
		Logical:  int32(version & LogicalMask),
		NodeID:   (version >> LogicalBits) & NodeIDMask,
	}
}
