package telemetry

// ApplyBuckets covers a single locked apply: log append, pebble commit and model update.
var ApplyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

// Mutation Metrics
var (
	// MutationsApplied counts applied mutations by type (set, clear, ignored) and result (ok, failed)
	MutationsApplied CounterVec = noopCounterVec{}

	// ApplyDurationSeconds measures one Apply call end to end
	ApplyDurationSeconds Histogram = NoopStat{}

	// ClearReplays counts full re-derivations triggered by clears
	ClearReplays Counter = NoopStat{}

	// PolicyDecodeFailures counts policy values rejected by the decoder
	PolicyDecodeFailures Counter = NoopStat{}

	// RecoveryReplayed counts log records replayed during recovery
	RecoveryReplayed Counter = NoopStat{}
)

// Configuration State Metrics
var (
	// ConfigValid is 1 while the configuration is valid
	ConfigValid Gauge = NoopStat{}

	// ValidityTransitions counts validity flips by direction (to_valid, to_invalid)
	ValidityTransitions CounterVec = noopCounterVec{}

	// RedundancyMode is 1 for the current canonical redundancy mode
	RedundancyMode GaugeVec = noopGaugeVec{}

	// ConfigKeys tracks the number of raw pairs in the namespace
	ConfigKeys Gauge = NoopStat{}

	// ExcludedServers tracks the number of exclusion entries
	ExcludedServers Gauge = NoopStat{}

	// PolicyCacheEntries tracks decoded policies held by the cache
	PolicyCacheEntries Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	MutationsApplied = NewCounterVec(
		"mutations_applied_total",
		"Mutations applied by type and result",
		[]string{"type", "result"},
	)
	ApplyDurationSeconds = NewHistogramWithBuckets(
		"apply_duration_seconds",
		"Apply duration in seconds",
		ApplyBuckets,
	)
	ClearReplays = NewCounter(
		"clear_replays_total",
		"Full re-derivations of the configuration after a clear",
	)
	PolicyDecodeFailures = NewCounter(
		"policy_decode_failures_total",
		"Replication policy values that failed to decode",
	)
	RecoveryReplayed = NewCounter(
		"recovery_replayed_total",
		"Log records replayed during recovery",
	)

	ConfigValid = NewGauge(
		"valid",
		"Whether the configuration is valid (1=yes, 0=no)",
	)
	ValidityTransitions = NewCounterVec(
		"validity_transitions_total",
		"Validity transitions by direction",
		[]string{"direction"},
	)
	RedundancyMode = NewGaugeVec(
		"redundancy_mode",
		"Current canonical redundancy mode",
		[]string{"mode"},
	)
	ConfigKeys = NewGauge(
		"keys",
		"Number of raw pairs in the configuration namespace",
	)
	ExcludedServers = NewGauge(
		"excluded_servers",
		"Number of excluded addresses",
	)
	PolicyCacheEntries = NewGauge(
		"policy_cache_entries",
		"Decoded replication policies held by the cache",
	)
}

// SetRedundancyMode marks mode as the only current mode.
func SetRedundancyMode(mode string) {
	RedundancyMode.Reset()
	if mode != "" {
		RedundancyMode.With(mode).Set(1)
	}
}
